package statement

import (
	"errors"
	"testing"

	"modernc.org/sqlite/vtab"
)

// eq builds a usable equality constraint on column col, initialized the way
// the driver hands constraints to BestIndex.
func eq(col int) vtab.Constraint {
	return vtab.Constraint{Column: col, Op: vtab.OpEQ, Usable: true, ArgIndex: -1}
}

func TestPlanDirectContiguous(t *testing.T) {
	// Two outputs, so columns 2 and 3 are parameters 1 and 2. Constraining
	// both without a gap needs no mapping payload.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{eq(2), eq(3)}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if info.IdxStr != "" {
		t.Fatalf("direct plan carries payload %q", info.IdxStr)
	}
	if info.IdxNum != planBound {
		t.Fatalf("IdxNum = %d, want %d", info.IdxNum, planBound)
	}
	for i, want := range []int{0, 1} {
		if got := info.Constraints[i].ArgIndex; got != want {
			t.Fatalf("constraint %d ArgIndex = %d, want %d", i, got, want)
		}
		if !info.Constraints[i].Omit {
			t.Fatalf("constraint %d not marked omit", i)
		}
	}
	if info.EstimatedCost != 1 || info.EstimatedRows != 1 {
		t.Fatalf("cost/rows = %v/%v, want 1/1", info.EstimatedCost, info.EstimatedRows)
	}
}

func TestPlanDirectVisitOrder(t *testing.T) {
	// The same contiguous set visited in reverse still binds by ordinal.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{eq(3), eq(2)}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if info.IdxStr != "" {
		t.Fatalf("direct plan carries payload %q", info.IdxStr)
	}
	if got := info.Constraints[0].ArgIndex; got != 1 {
		t.Fatalf("constraint 0 ArgIndex = %d, want 1", got)
	}
	if got := info.Constraints[1].ArgIndex; got != 0 {
		t.Fatalf("constraint 1 ArgIndex = %d, want 0", got)
	}
}

func TestPlanMappedSparse(t *testing.T) {
	// Parameters 1 and 3 of three, skipping 2: argument positions are dealt
	// sequentially and the payload records the true ordinals.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{eq(2), eq(4)}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if len(info.IdxStr) != 2*paramIndexWidth {
		t.Fatalf("payload length = %d, want %d", len(info.IdxStr), 2*paramIndexWidth)
	}
	if got := decodeParamIndex(info.IdxStr); got != 1 {
		t.Fatalf("slot 0 ordinal = %d, want 1", got)
	}
	if got := decodeParamIndex(info.IdxStr[paramIndexWidth:]); got != 3 {
		t.Fatalf("slot 1 ordinal = %d, want 3", got)
	}
	for i, want := range []int{0, 1} {
		if got := info.Constraints[i].ArgIndex; got != want {
			t.Fatalf("constraint %d ArgIndex = %d, want %d", i, got, want)
		}
	}
}

func TestPlanMappedVisitOrder(t *testing.T) {
	// Sparse set visited high ordinal first: slots still name their targets.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{eq(4), eq(2)}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if got := decodeParamIndex(info.IdxStr); got != 3 {
		t.Fatalf("slot 0 ordinal = %d, want 3", got)
	}
	if got := decodeParamIndex(info.IdxStr[paramIndexWidth:]); got != 1 {
		t.Fatalf("slot 1 ordinal = %d, want 1", got)
	}
}

func TestPlanDuplicateOrdinalIsMapped(t *testing.T) {
	// Two equalities on one parameter column cannot be direct: the count
	// exceeds the highest ordinal.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{eq(2), eq(2)}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if len(info.IdxStr) != 2*paramIndexWidth {
		t.Fatalf("payload length = %d, want %d", len(info.IdxStr), 2*paramIndexWidth)
	}
	if got := decodeParamIndex(info.IdxStr); got != 1 {
		t.Fatalf("slot 0 ordinal = %d, want 1", got)
	}
	if got := decodeParamIndex(info.IdxStr[paramIndexWidth:]); got != 1 {
		t.Fatalf("slot 1 ordinal = %d, want 1", got)
	}
}

func TestPlanLeavesEngineConstraints(t *testing.T) {
	// Output columns, the rowid, LIMIT and OFFSET are the engine's to
	// evaluate; none of them may claim an argument position.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{
		{Column: 0, Op: vtab.OpEQ, Usable: true, ArgIndex: -1},
		{Column: -1, Op: vtab.OpEQ, Usable: true, ArgIndex: -1},
		{Column: -1, Op: vtab.OpLIMIT, Usable: true, ArgIndex: -1},
		{Column: -1, Op: vtab.OpOFFSET, Usable: true, ArgIndex: -1},
	}}
	if err := planIndex(1, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	for i := range info.Constraints {
		if info.Constraints[i].ArgIndex != -1 {
			t.Fatalf("constraint %d claimed argument position %d", i, info.Constraints[i].ArgIndex)
		}
	}
	if info.IdxStr != "" || info.IdxNum != planBound {
		t.Fatalf("plan = (%d, %q), want trivial", info.IdxNum, info.IdxStr)
	}
}

func TestPlanRejectsNonEquality(t *testing.T) {
	for _, op := range []vtab.ConstraintOp{vtab.OpGT, vtab.OpLT, vtab.OpGE, vtab.OpLE, vtab.OpNE, vtab.OpIS, vtab.OpLIKE, vtab.OpUnknown} {
		info := &vtab.IndexInfo{Constraints: []vtab.Constraint{
			{Column: 2, Op: op, Usable: true, ArgIndex: -1},
		}}
		err := planIndex(2, info)
		if !errors.Is(err, ErrUnsupportedConstraint) {
			t.Fatalf("op %d: err = %v, want ErrUnsupportedConstraint", op, err)
		}
	}
}

func TestPlanUnusableEqualityPoisonsPlan(t *testing.T) {
	// An unusable equality means the engine is probing a join order where
	// the value is not yet known. The plan must survive planning, price
	// itself out, and be refused at filter time if chosen anyway.
	info := &vtab.IndexInfo{Constraints: []vtab.Constraint{
		{Column: 2, Op: vtab.OpEQ, Usable: false, ArgIndex: -1},
		eq(3),
	}}
	if err := planIndex(2, info); err != nil {
		t.Fatalf("planIndex: %v", err)
	}
	if info.IdxNum != planUnbound {
		t.Fatalf("IdxNum = %d, want %d", info.IdxNum, planUnbound)
	}
	if info.EstimatedCost <= 1e50 {
		t.Fatalf("EstimatedCost = %v, want deterrent", info.EstimatedCost)
	}
	if got := info.Constraints[0].ArgIndex; got != -1 {
		t.Fatalf("unusable constraint claimed argument position %d", got)
	}
	// The usable constraint alone covers ordinal 2 with a gap at 1.
	if got := decodeParamIndex(info.IdxStr); got != 2 {
		t.Fatalf("slot 0 ordinal = %d, want 2", got)
	}
}
