package verify

import (
	"fmt"
	"strings"

	"github.com/crossffi/bridgen/pkg/rusttype"
	"github.com/crossffi/bridgen/pkg/shape"
	"github.com/crossffi/bridgen/pkg/spec"
)

// DefaultFill synthesizes deterministic non-trivial field values for the
// roundtrip input when neither a collaborator fill nor a recorded sample is
// available. Starting from a zeroed struct it populates scalars, C strings,
// slices with their length fields, and boxed scalars. Struct refs stay null;
// a forbidden-null struct ref needs a sample or a collaborator fill.
func DefaultFill(s *spec.StructSpec) []string {
	var lines []string

	if s.Enum != nil {
		// Activate the first variant: tag plus its payload.
		v := &s.Enum.Variants[0]
		tagType := s.UFieldType(v.When.Tag)
		if tagType == "" {
			tagType = "libc::c_int"
		}
		lines = append(lines,
			fmt.Sprintf("c0.%s = %s as %s;", v.When.Tag, v.When.Equals.String(), tagType))
		for i := range v.Payload {
			lines = append(lines, fillField(&v.Payload[i], s)...)
		}
		return lines
	}

	derived := make(map[string]bool)
	for i := range s.Fields {
		if p := s.Fields[i].U.Shape.Ptr; p != nil && p.LenFrom != "" {
			derived[p.LenFrom] = true
		}
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if derived[f.U.Name] {
			// Written alongside the slice that measures it.
			continue
		}
		lines = append(lines, fillField(f, s)...)
	}
	return lines
}

func fillField(f *spec.Field, s *spec.StructSpec) []string {
	r, err := shape.Classify(f)
	if err != nil {
		return nil
	}
	name := f.U.Name
	uType := f.U.Type

	switch r.Kind {
	case shape.Scalar:
		if uType != "" {
			return []string{fmt.Sprintf("c0.%s = 1 as %s;", name, uType)}
		}
		return []string{fmt.Sprintf("c0.%s = 1;", name)}

	case shape.CString:
		if uType == "" {
			uType = "*mut libc::c_char"
		}
		return []string{fmt.Sprintf(
			`c0.%s = std::ffi::CString::new("sample").unwrap().into_raw() as %s;`, name, uType)}

	case shape.Slice:
		elem := rusttype.PointerElem(uType)
		n := 3
		if r.HasConst {
			n = r.LengthConst
		}
		elems := make([]string, n)
		for i := range elems {
			elems[i] = fmt.Sprintf("%d as %s", i+1, elem)
		}
		lines := []string{fmt.Sprintf(
			"c0.%s = Box::into_raw(vec![%s].into_boxed_slice()) as *mut %s as %s;",
			name, strings.Join(elems, ", "), elem, castOr(uType, "*mut "+elem))}
		if r.LengthField != "" {
			lenType := s.UFieldType(r.LengthField)
			if lenType == "" {
				lenType = "usize"
			}
			lines = append(lines, fmt.Sprintf("c0.%s = %d as %s;", r.LengthField, n, lenType))
		}
		return lines

	case shape.SingleRef:
		base := rusttype.PointerBaseIdent(uType)
		if base != "" && (rusttype.IsNumericPrimitive(base) ||
			rusttype.ScalarCast(base) != "" || strings.HasPrefix(base, "c_")) {
			elem := rusttype.PointerElem(uType)
			return []string{fmt.Sprintf(
				"c0.%s = Box::into_raw(Box::new(7 as %s)) as %s;",
				name, elem, castOr(uType, "*mut "+elem))}
		}
		// Struct refs default to null; only valid when null is allowed.
		return nil
	}
	return nil
}

func castOr(uType, fallback string) string {
	if uType != "" {
		return uType
	}
	return fallback
}
