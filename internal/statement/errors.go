package statement

import "errors"

// These surface as the error message of a failing CREATE VIRTUAL TABLE or
// query, so they are worded for people reading SQL errors.
var (
	// ErrNoStatement reports a table created without a statement argument,
	// or with one that is empty once unwrapped.
	ErrNoStatement = errors.New("no statement provided")

	// ErrNotParenthesized reports a statement argument that is not wrapped
	// in parentheses. The wrapping keeps commas inside the statement from
	// splitting it into several module arguments.
	ErrNotParenthesized = errors.New("statement must be parenthesized")

	// ErrNotReadOnly reports a statement that attempted to modify the
	// database during the creation probe.
	ErrNotReadOnly = errors.New("statement must be read only")

	// ErrBadParameterName reports a parameter that database/sql cannot
	// address, such as a named parameter whose name starts with a digit.
	ErrBadParameterName = errors.New("parameter cannot be bound through database/sql")

	// ErrUnsupportedConstraint reports a non-equality predicate on a
	// parameter column.
	ErrUnsupportedConstraint = errors.New("parameter columns support only equality constraints")

	// ErrTooManyConstraints reports an accepted constraint count too large
	// to represent in a mapping payload.
	ErrTooManyConstraints = errors.New("too many constraints to index")

	// ErrUnboundPlan reports a scan started from a join order in which the
	// values for the constrained parameter columns were not yet available.
	ErrUnboundPlan = errors.New("parameter values are not available in the chosen query plan")
)
