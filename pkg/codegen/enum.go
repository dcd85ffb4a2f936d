package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/crossffi/bridgen/pkg/rusttype"
	"github.com/crossffi/bridgen/pkg/spec"
)

// assembleEnum flattens a tagged union into a sum type. Forward dispatch
// matches on the live tag value and builds the named variant from that
// variant's payload fields only; backward reconstructs the full C layout,
// zeroing every field outside the active payload and writing the variant's
// tag value back. A tag value no variant claims panics rather than guessing.
func assembleEnum(s *spec.StructSpec) (*ConverterPair, error) {
	e := s.Enum
	iType := s.IdiomaticType()
	cType := CTypeName(s.StructName)

	var blockers []string

	tag := e.Variants[0].When.Tag
	for _, v := range e.Variants {
		if v.When.Tag != tag {
			blockers = append(blockers, fmt.Sprintf(
				"variants select on different tag fields (%q vs %q)", tag, v.When.Tag))
			break
		}
	}

	payloadMembers := make(map[string]bool)
	for _, v := range e.Variants {
		for i := range v.Payload {
			payloadMembers[v.Payload[i].U.Name] = true
		}
	}
	for i := range s.Fields {
		name := s.Fields[i].U.Name
		if name != tag && !payloadMembers[name] {
			blockers = append(blockers, fmt.Sprintf(
				"field %q is neither the tag nor any variant payload", name))
		}
	}

	data := enumPairData{
		ForwardName:  ForwardName(s.StructName, iType),
		BackwardName: BackwardName(s.StructName, iType),
		CType:        cType,
		IType:        iType,
		TagField:     tag,
	}

	for vi := range e.Variants {
		v := &e.Variants[vi]
		fwd, bwd, reasons := emitVariant(s, v, iType, cType, tag)
		blockers = append(blockers, reasons...)
		data.ForwardArms = append(data.ForwardArms, fwd...)
		data.BackwardArms = append(data.BackwardArms, bwd...)
	}

	if len(blockers) > 0 {
		return SkeletonPair(s, blockers), nil
	}

	return &ConverterPair{
		StructName:    s.StructName,
		IdiomaticType: iType,
		CType:         cType,
		Source:        render(enumPairTmpl, data),
	}, nil
}

// emitVariant renders both match arms for one variant. Payload fields come
// back positionally when their idiomatic names are tuple indices, by name
// otherwise.
func emitVariant(s *spec.StructSpec, v *spec.Variant, iType, cType, tag string) (fwd, bwd, reasons []string) {
	equals := v.When.Equals.String()
	payload := orderedPayload(v)

	tuple := len(payload) > 0
	for _, f := range payload {
		if _, err := strconv.Atoi(f.I.Name); err != nil {
			tuple = false
			break
		}
	}

	// Forward arm.
	switch {
	case len(payload) == 0:
		fwd = []string{fmt.Sprintf("        %s => %s::%s,", equals, iType, v.Name)}
	case tuple:
		fwd = []string{fmt.Sprintf("        %s => %s::%s(", equals, iType, v.Name)}
		for _, f := range payload {
			expr, err := payloadForwardExpr(f)
			if err != "" {
				reasons = append(reasons, fmt.Sprintf("variant %s payload %q: %s", v.Name, f.U.Name, err))
				continue
			}
			fwd = append(fwd, fmt.Sprintf("            %s,", expr))
		}
		fwd = append(fwd, "        ),")
	default:
		fwd = []string{fmt.Sprintf("        %s => %s::%s {", equals, iType, v.Name)}
		for _, f := range payload {
			expr, err := payloadForwardExpr(f)
			if err != "" {
				reasons = append(reasons, fmt.Sprintf("variant %s payload %q: %s", v.Name, f.U.Name, err))
				continue
			}
			fwd = append(fwd, fmt.Sprintf("            %s: %s,", f.I.Name, expr))
		}
		fwd = append(fwd, "        },")
	}

	// Backward arm: full C literal with the tag written back and inactive
	// fields zeroed.
	bindings := make(map[string]string) // u_field name -> binding name
	var pattern string
	switch {
	case len(payload) == 0:
		pattern = fmt.Sprintf("%s::%s", iType, v.Name)
	case tuple:
		names := make([]string, len(payload))
		for i, f := range payload {
			names[i] = "p" + f.I.Name
			bindings[f.U.Name] = names[i]
		}
		pattern = fmt.Sprintf("%s::%s(%s)", iType, v.Name, strings.Join(names, ", "))
	default:
		names := make([]string, len(payload))
		for i, f := range payload {
			names[i] = f.I.Name
			bindings[f.U.Name] = names[i]
		}
		pattern = fmt.Sprintf("%s::%s { %s }", iType, v.Name, strings.Join(names, ", "))
	}

	bwd = []string{fmt.Sprintf("        %s => {", pattern)}
	var literal []string
	for i := range s.Fields {
		cf := &s.Fields[i]
		name := cf.U.Name
		switch {
		case name == tag:
			if cf.U.Type != "" {
				literal = append(literal, fmt.Sprintf("                %s: %s as %s,", name, equals, cf.U.Type))
			} else {
				literal = append(literal, fmt.Sprintf("                %s: %s,", name, equals))
			}
		case bindings[name] != "":
			pf := payloadField(v, name)
			pre, fieldExpr, err := payloadBackward(pf, bindings[name])
			if err != "" {
				reasons = append(reasons, fmt.Sprintf("variant %s payload %q: %s", v.Name, name, err))
				continue
			}
			bwd = append(bwd, pre...)
			literal = append(literal, fmt.Sprintf("                %s: %s,", name, fieldExpr))
		default:
			literal = append(literal, fmt.Sprintf("                %s: unsafe { core::mem::zeroed() },", name))
		}
	}
	bwd = append(bwd, fmt.Sprintf("            %s {", cType))
	bwd = append(bwd, literal...)
	bwd = append(bwd, "            }")
	bwd = append(bwd, "        }")
	return fwd, bwd, reasons
}

// orderedPayload returns the payload fields in a stable order: numeric
// idiomatic names sort as tuple positions, everything else keeps spec order.
func orderedPayload(v *spec.Variant) []*spec.Field {
	out := make([]*spec.Field, len(v.Payload))
	for i := range v.Payload {
		out[i] = &v.Payload[i]
	}
	sort.SliceStable(out, func(a, b int) bool {
		na, errA := strconv.Atoi(out[a].I.Name)
		nb, errB := strconv.Atoi(out[b].I.Name)
		if errA != nil || errB != nil {
			return false
		}
		return na < nb
	})
	return out
}

func payloadField(v *spec.Variant, uName string) *spec.Field {
	for i := range v.Payload {
		if v.Payload[i].U.Name == uName {
			return &v.Payload[i]
		}
	}
	return nil
}

// payloadForwardExpr renders a single-expression conversion of one payload
// field read from c_struct. Scalars and C strings are expressible inline;
// anything else blocks the enum.
func payloadForwardExpr(f *spec.Field) (expr, reason string) {
	access := cStructBind + "." + f.U.Name
	sh := f.U.Shape
	if sh.Scalar {
		if cast := rusttype.ScalarCast(f.U.Type); cast != "" {
			return fmt.Sprintf("%s as %s", access, cast), ""
		}
		return access, ""
	}
	if sh.Ptr != nil && sh.Ptr.Kind == spec.KindCString {
		decode := fmt.Sprintf(
			"unsafe { std::ffi::CStr::from_ptr(%s) }.to_string_lossy().into_owned()", access)
		if sh.Ptr.Nullability() == spec.NullNullable {
			return fmt.Sprintf("if !%s.is_null() { Some(%s) } else { None }", access, decode), ""
		}
		return fmt.Sprintf("if !%s.is_null() { %s } else { String::new() }", access, decode), ""
	}
	return "", "only scalar and cstring payloads are supported in tagged unions"
}

// payloadBackward renders the reverse of payloadForwardExpr: optional
// statements before the C literal plus the field initializer expression.
func payloadBackward(f *spec.Field, binding string) (pre []string, expr, reason string) {
	if f == nil {
		return nil, "", "payload field missing"
	}
	sh := f.U.Shape
	if sh.Scalar {
		if f.U.Type != "" && rusttype.ScalarCast(f.U.Type) != "" {
			return nil, fmt.Sprintf("*%s as %s", binding, f.U.Type), ""
		}
		return nil, "*" + binding, ""
	}
	if sh.Ptr != nil && sh.Ptr.Kind == spec.KindCString {
		uType := f.U.Type
		if uType == "" {
			uType = "*mut libc::c_char"
		}
		tmp := "_" + f.U.Name
		if sh.Ptr.Nullability() == spec.NullNullable {
			pre = []string{
				fmt.Sprintf("            let %s: %s = match %s.clone() {", tmp, uType, binding),
				"                Some(s) => std::ffi::CString::new(s)",
				"                    .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())",
				fmt.Sprintf("                    .into_raw() as %s,", uType),
				"                None => core::ptr::null_mut(),",
				"            };",
			}
		} else {
			pre = []string{
				fmt.Sprintf("            let %s: %s = std::ffi::CString::new(%s.clone())", tmp, uType, binding),
				"                .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())",
				fmt.Sprintf("                .into_raw() as %s;", uType),
			}
		}
		return pre, tmp, ""
	}
	return nil, "", "only scalar and cstring payloads are supported in tagged unions"
}
