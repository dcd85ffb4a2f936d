package shape

import (
	"fmt"

	"github.com/crossffi/bridgen/pkg/spec"
)

// Resolved is the classified shape of one field, with its length source and
// nullability made explicit. Nullability is never inferred from the pointer
// type alone: the spec must declare it, and the default (empty) decodes a
// null pointer to an empty value.
type Resolved struct {
	Kind Kind

	// LengthField names the scalar sibling carrying the element count.
	// Exactly one of LengthField/HasConst is set for Slice shapes.
	LengthField string
	LengthConst int
	HasConst    bool

	Null string // spec.NullEmpty, spec.NullNullable or spec.NullForbidden
}

// Nullable reports whether the pointer may legally be null.
func (r Resolved) Nullable() bool {
	return r.Null != spec.NullForbidden
}

// Optional reports whether the idiomatic side must carry an absent-value
// representation (Option) rather than an empty fallback.
func (r Resolved) Optional() bool {
	return r.Null == spec.NullNullable
}

// LengthExpr renders the Rust element-count expression for a slice shape,
// reading the length field through the given accessor prefix.
func (r Resolved) LengthExpr(prefix string) string {
	if r.LengthField != "" {
		return fmt.Sprintf("(%s%s as usize)", prefix, r.LengthField)
	}
	if r.HasConst {
		return fmt.Sprintf("%dusize", r.LengthConst)
	}
	return "1usize" // SingleRef
}

// Classify maps a field to exactly one resolved shape. The spec is assumed
// to have passed validation; classification still guards the invariants it
// depends on and fails rather than guessing.
func Classify(f *spec.Field) (Resolved, error) {
	sh := f.U.Shape
	if sh.Scalar {
		return Resolved{Kind: Scalar}, nil
	}
	ptr := sh.Ptr
	if ptr == nil {
		return Resolved{}, fmt.Errorf("field %q: no shape declared", f.U.Name)
	}

	r := Resolved{Null: ptr.Nullability()}
	switch ptr.Kind {
	case spec.KindSlice:
		r.Kind = Slice
		switch {
		case ptr.LenFrom != "" && ptr.LenConst == nil:
			r.LengthField = ptr.LenFrom
		case ptr.LenFrom == "" && ptr.LenConst != nil:
			r.LengthConst = *ptr.LenConst
			r.HasConst = true
		default:
			return Resolved{}, fmt.Errorf(
				"field %q: slice requires exactly one of len_from or len_const", f.U.Name)
		}
	case spec.KindCString:
		r.Kind = CString
	case spec.KindRef:
		// ref is definitionally slice with len_const = 1.
		r.Kind = SingleRef
		r.LengthConst = 1
		r.HasConst = true
	default:
		return Resolved{}, fmt.Errorf("field %q: unknown ptr kind %q", f.U.Name, ptr.Kind)
	}
	return r, nil
}
