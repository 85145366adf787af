package statement

import (
	"fmt"
	"math"

	"modernc.org/sqlite/vtab"
)

// Plan markers carried from planning to filtering through the index number.
const (
	planBound   = 0 // every constrained parameter receives its value
	planUnbound = 1 // some equality constraint was unusable in this join order
)

// planIndex fills info with the access plan for one candidate constraint
// set. Constraints on result columns and on the rowid are left for the
// engine to evaluate. A usable equality constraint on a parameter column is
// accepted: its value is requested at filter time and the predicate is
// marked omit, since binding the parameter satisfies it exactly.
//
// When the accepted set covers parameter ordinals 1..n with no gaps, the
// argument position and the target ordinal coincide and the plan needs no
// payload. Any other shape gets a mapping payload: argument positions are
// handed out sequentially and the payload records the target ordinal for
// each position.
func planIndex(numOutputs int, info *vtab.IndexInfo) error {
	info.EstimatedCost = 1
	info.EstimatedRows = 1

	var (
		accepted int
		colMax   int    // highest constrained ordinal
		usedCols uint64 // ordinals seen, exact below 64
		unusable bool
	)
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if c.Op == vtab.OpLIMIT || c.Op == vtab.OpOFFSET {
			continue
		}
		if c.Column < numOutputs {
			continue
		}
		if c.Op != vtab.OpEQ {
			return fmt.Errorf("%w (column %d)", ErrUnsupportedConstraint, c.Column)
		}
		if !c.Usable {
			unusable = true
			continue
		}
		colIndex := c.Column - numOutputs
		c.ArgIndex = colIndex // argument position colIndex+1
		c.Omit = true
		if colIndex+1 > colMax {
			colMax = colIndex + 1
		}
		if colIndex < 64 {
			usedCols |= uint64(1) << colIndex
		}
		accepted++
	}

	if unusable {
		// The engine is pricing a join order in which some parameter value
		// is not yet known. Filter refuses this plan if it is ever chosen;
		// the cost steers the engine toward orders with usable constraints.
		info.IdxNum = planUnbound
		info.EstimatedCost = 1e99
	}

	if accepted == 0 {
		return nil
	}

	required := ^uint64(0)
	if colMax < 64 {
		required = uint64(1)<<colMax - 1
	}
	if colMax <= 64 && usedCols == required && accepted == colMax {
		return nil
	}

	if accepted > (math.MaxInt-1)/paramIndexWidth {
		return fmt.Errorf("%w: %d", ErrTooManyConstraints, accepted)
	}
	payload := make([]byte, accepted*paramIndexWidth)
	slot := 0
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if c.ArgIndex < 0 {
			continue
		}
		encodeParamIndex(payload[slot*paramIndexWidth:], c.ArgIndex+1)
		c.ArgIndex = slot
		slot++
	}
	info.IdxStr = string(payload)
	return nil
}
