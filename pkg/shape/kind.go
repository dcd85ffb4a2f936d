// Package shape resolves each mapping field to exactly one pointer shape.
// The shape set is a closed union: adding a kind requires extending every
// dispatch site, so an unhandled shape is a compile-time-visible gap rather
// than a silent default.
package shape

//go:generate go tool stringer -type=Kind

// Kind is the resolved shape of a field.
type Kind int

const (
	Scalar Kind = iota
	Slice
	CString
	SingleRef

	// KindTotal is the number of kinds defined.
	KindTotal = int(iota)
)
