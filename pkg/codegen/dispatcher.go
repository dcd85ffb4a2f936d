package codegen

import (
	"fmt"
	"strings"

	"github.com/crossffi/bridgen/pkg/rusttype"
	"github.com/crossffi/bridgen/pkg/shape"
	"github.com/crossffi/bridgen/pkg/spec"
)

const (
	indentField = "        " // inside struct literals
	indentBody  = "    "     // fn body temporaries
)

// ForwardName is the unidiomatic-to-idiomatic converter symbol.
func ForwardName(structName, iType string) string {
	return fmt.Sprintf("C%s_to_%s_mut", structName, iType)
}

// BackwardName is the idiomatic-to-unidiomatic converter symbol.
func BackwardName(structName, iType string) string {
	return fmt.Sprintf("%s_to_C%s_mut", iType, structName)
}

// CTypeName is the Rust name of the unidiomatic struct definition.
func CTypeName(structName string) string {
	return "C" + structName
}

// emitCtx carries the per-struct context the field rules need: which C
// fields hold derived lengths, which are referenced as a slice length source,
// and the declared C type of any field by name.
type emitCtx struct {
	resolver   Resolver
	derivedLen map[string]bool
	lenTargets map[string]bool
	uTypeOf    func(name string) string
}

// emitStructField dispatches one field through the rule table. The result is
// never silently wrong: combinations outside the table come back as an
// unsupported unit carrying a TODO marker for both struct literals.
func emitStructField(f *spec.Field, ctx *emitCtx) fieldUnit {
	if strings.Contains(f.U.Name, ".") {
		return unsupportedUnit(f, "dot-path unidiomatic field names are not supported")
	}
	if strings.Contains(f.I.Name, ".") && !strings.HasSuffix(f.I.Name, ".len") {
		return unsupportedUnit(f, fmt.Sprintf("unsupported idiomatic path %q", f.I.Name))
	}

	r, err := shape.Classify(f)
	if err != nil {
		return unsupportedUnit(f, err.Error())
	}

	switch r.Kind {
	case shape.Scalar:
		return emitScalar(f, ctx)
	case shape.CString:
		return emitCString(f, r)
	case shape.Slice:
		return emitSlice(f, r, ctx)
	case shape.SingleRef:
		return emitSingleRef(f, r, ctx)
	}
	return unsupportedUnit(f, fmt.Sprintf("no rule for shape %v", r.Kind))
}

func unsupportedUnit(f *spec.Field, reason string) fieldUnit {
	todo := fmt.Sprintf("%s// TODO: %s: %s", indentField, f.U.Name, reason)
	return fieldUnit{
		initLines:   []string{todo},
		cInit:       []string{todo},
		unsupported: true,
		reason:      reason,
	}
}

func emitScalar(f *spec.Field, ctx *emitCtx) fieldUnit {
	c := f.U.Name
	if ctx.derivedLen[c] {
		// The idiomatic side has no such field; the owning slice rule
		// recomputes the count on the way back.
		return fieldUnit{initLines: []string{
			fmt.Sprintf("%s// %s holds a derived length (%s)", indentField, c, f.I.Name),
		}}
	}

	var u fieldUnit
	access := cStructBind + "." + c
	if cast := rusttype.ScalarCast(f.U.Type); cast != "" {
		u.initLines = []string{fmt.Sprintf("%s%s: %s as %s,", indentField, f.I.Name, access, cast)}
	} else {
		u.initLines = []string{fmt.Sprintf("%s%s: %s,", indentField, f.I.Name, access)}
	}

	if ctx.lenTargets[c] {
		// A slice names this field as its length source; the slice rule
		// owns the backward write so the count always tracks the
		// collection.
		return u
	}

	iAccess := idiomStructBind + "." + f.I.Name
	if f.U.Type != "" && rusttype.ScalarCast(f.U.Type) != "" {
		u.backLines = []string{fmt.Sprintf("%slet _%s = %s as %s;", indentBody, c, iAccess, f.U.Type)}
	} else {
		u.backLines = []string{fmt.Sprintf("%slet _%s = %s;", indentBody, c, iAccess)}
	}
	u.cInit = []string{fmt.Sprintf("%s%s: _%s,", indentField, c, c)}
	return u
}

func emitCString(f *spec.Field, r shape.Resolved) fieldUnit {
	c := f.U.Name
	access := cStructBind + "." + c
	uType := f.U.Type
	if uType == "" {
		uType = "*mut libc::c_char"
	}

	var u fieldUnit
	if !r.Nullable() {
		u.asserts = []string{fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, access)}
	}

	decode := fmt.Sprintf("unsafe { std::ffi::CStr::from_ptr(%s) }.to_string_lossy().into_owned()", access)
	if r.Optional() {
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() {", indentField, f.I.Name, access),
			fmt.Sprintf("%s    Some(%s)", indentField, decode),
			indentField + "} else {",
			indentField + "    None",
			indentField + "},",
		}
	} else {
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() {", indentField, f.I.Name, access),
			fmt.Sprintf("%s    %s", indentField, decode),
			indentField + "} else {",
			indentField + "    String::new()",
			indentField + "},",
		}
	}

	iAccess := idiomStructBind + "." + f.I.Name
	if r.Optional() {
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: %s = match %s.clone() {", indentBody, c, uType, iAccess),
			fmt.Sprintf("%s    Some(s) => std::ffi::CString::new(s)", indentBody),
			fmt.Sprintf("%s        .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())", indentBody),
			fmt.Sprintf("%s        .into_raw() as %s,", indentBody, uType),
			fmt.Sprintf("%s    None => core::ptr::null_mut(),", indentBody),
			indentBody + "};",
		}
	} else {
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: %s = std::ffi::CString::new(%s.clone())", indentBody, c, uType, iAccess),
			fmt.Sprintf("%s    .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())", indentBody),
			fmt.Sprintf("%s    .into_raw() as %s;", indentBody, uType),
		}
	}
	u.cInit = []string{fmt.Sprintf("%s%s: _%s,", indentField, c, c)}
	return u
}

func emitSlice(f *spec.Field, r shape.Resolved, ctx *emitCtx) fieldUnit {
	c := f.U.Name
	access := cStructBind + "." + c
	elem := rusttype.PointerElem(f.U.Type)
	lenExpr := r.LengthExpr(cStructBind + ".")

	var u fieldUnit
	if !r.Nullable() {
		u.asserts = []string{fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, access)}
	}

	view := fmt.Sprintf("unsafe { std::slice::from_raw_parts(%s as *const %s, %s) }.to_vec()",
		access, elem, lenExpr)
	switch {
	case r.Optional():
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() && %s > 0 {", indentField, f.I.Name, access, lenExpr),
			fmt.Sprintf("%s    Some(%s)", indentField, view),
			indentField + "} else {",
			indentField + "    None",
			indentField + "},",
		}
	case !r.Nullable():
		u.initLines = []string{fmt.Sprintf("%s%s: %s,", indentField, f.I.Name, view)}
	default:
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() && %s > 0 {", indentField, f.I.Name, access, lenExpr),
			fmt.Sprintf("%s    %s", indentField, view),
			indentField + "} else {",
			indentField + "    Vec::new()",
			indentField + "},",
		}
	}

	iAccess := idiomStructBind + "." + f.I.Name
	if r.Optional() {
		u.backLines = []string{
			fmt.Sprintf("%slet _%s_ptr: *mut %s = match %s.as_ref() {", indentBody, c, elem, iAccess),
			fmt.Sprintf("%s    Some(v) if !v.is_empty() => {", indentBody),
			fmt.Sprintf("%s        let mut boxed = v.clone().into_boxed_slice();", indentBody),
			fmt.Sprintf("%s        let p = boxed.as_mut_ptr();", indentBody),
			fmt.Sprintf("%s        core::mem::forget(boxed);", indentBody),
			fmt.Sprintf("%s        p", indentBody),
			fmt.Sprintf("%s    }", indentBody),
			fmt.Sprintf("%s    _ => core::ptr::null_mut(),", indentBody),
			indentBody + "};",
		}
	} else {
		u.backLines = []string{
			fmt.Sprintf("%slet _%s_ptr: *mut %s = if %s.is_empty() {", indentBody, c, elem, iAccess),
			fmt.Sprintf("%s    core::ptr::null_mut()", indentBody),
			indentBody + "} else {",
			fmt.Sprintf("%s    let mut boxed = %s.clone().into_boxed_slice();", indentBody, iAccess),
			fmt.Sprintf("%s    let p = boxed.as_mut_ptr();", indentBody),
			fmt.Sprintf("%s    core::mem::forget(boxed);", indentBody),
			fmt.Sprintf("%s    p", indentBody),
			indentBody + "};",
		}
	}
	if f.U.Type != "" {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s_ptr as %s,", indentField, c, c, f.U.Type)}
	} else {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s_ptr,", indentField, c, c)}
	}

	// The length always comes back from the collection itself, so the
	// emitted count can never drift from the element count.
	if r.LengthField != "" {
		var lenVal string
		if r.Optional() {
			lenVal = fmt.Sprintf("%s.as_ref().map_or(0, |v| v.len())", iAccess)
		} else {
			lenVal = fmt.Sprintf("%s.len()", iAccess)
		}
		lenCType := ctx.uTypeOf(r.LengthField)
		if lenCType == "" {
			lenCType = "usize"
		}
		u.backLines = append(u.backLines,
			fmt.Sprintf("%slet _%s = %s as %s;", indentBody, r.LengthField, lenVal, lenCType))
		u.cInit = append(u.cInit,
			fmt.Sprintf("%s%s: _%s,", indentField, r.LengthField, r.LengthField))
	}
	return u
}

func emitSingleRef(f *spec.Field, r shape.Resolved, ctx *emitCtx) fieldUnit {
	base := rusttype.PointerBaseIdent(f.U.Type)
	if base == "" {
		return unsupportedUnit(f, fmt.Sprintf("ref field needs a pointer type, got %q", f.U.Type))
	}
	if rusttype.IsNumericPrimitive(base) || rusttype.ScalarCast(base) != "" ||
		strings.HasPrefix(base, "c_") {
		return emitScalarRef(f, r)
	}
	return emitStructRef(f, r, base, ctx)
}

// emitScalarRef handles a pointer to a single scalar, mapped to a plain or
// boxed value on the idiomatic side.
func emitScalarRef(f *spec.Field, r shape.Resolved) fieldUnit {
	c := f.U.Name
	access := cStructBind + "." + c
	elem := rusttype.PointerElem(f.U.Type)
	boxed := rusttype.BoxInner(f.I.Type) != ""

	var u fieldUnit
	if !r.Nullable() {
		u.asserts = []string{fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, access)}
	}

	read := fmt.Sprintf("unsafe { *(%s as *const %s) }", access, elem)
	if boxed {
		read = fmt.Sprintf("Box::new(%s)", read)
	}
	if r.Optional() {
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() {", indentField, f.I.Name, access),
			fmt.Sprintf("%s    Some(%s)", indentField, read),
			indentField + "} else {",
			indentField + "    None",
			indentField + "},",
		}
	} else {
		u.initLines = []string{fmt.Sprintf("%s%s: %s,", indentField, f.I.Name, read)}
	}

	iAccess := idiomStructBind + "." + f.I.Name
	deref := iAccess
	if boxed {
		deref = "*" + iAccess
	}
	cElem := elem
	if t := rusttype.Parse(f.U.Type); t.PointerInner != nil {
		cElem = t.PointerInner.Normalized
	}
	if r.Optional() {
		inner := "v"
		if boxed {
			inner = "*v"
		}
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: *mut %s = match %s {", indentBody, c, cElem, iAccess),
			fmt.Sprintf("%s    Some(ref v) => Box::into_raw(Box::new(%s as %s)),", indentBody, inner, cElem),
			fmt.Sprintf("%s    None => core::ptr::null_mut(),", indentBody),
			indentBody + "};",
		}
	} else {
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: *mut %s = Box::into_raw(Box::new(%s as %s));",
				indentBody, c, cElem, deref, cElem),
		}
	}
	if f.U.Type != "" {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s as %s,", indentField, c, c, f.U.Type)}
	} else {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s,", indentField, c, c)}
	}
	return u
}

// emitStructRef delegates a pointer-to-struct field to the referenced
// struct's converter pair. The assembler has already ordered dependencies,
// so an unknown target here is a real gap, not a sequencing artifact.
func emitStructRef(f *spec.Field, r shape.Resolved, base string, ctx *emitCtx) fieldUnit {
	target := strings.TrimPrefix(base, "C")
	if !ctx.resolver.Has(target) {
		return unsupportedUnit(f,
			fmt.Sprintf("no converter pair for referenced struct %q", target))
	}

	iInner := innerIdent(f.I.Type)
	if iInner == "" {
		return unsupportedUnit(f,
			fmt.Sprintf("cannot name the idiomatic target type in %q", f.I.Type))
	}
	boxed := rusttype.BoxInner(f.I.Type) != ""

	c := f.U.Name
	access := cStructBind + "." + c
	cType := CTypeName(target)

	var u fieldUnit
	if !r.Nullable() {
		u.asserts = []string{fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, access)}
	}

	read := fmt.Sprintf("unsafe { %s(%s as *mut %s) }.clone()", ForwardName(target, iInner), access, cType)
	if boxed {
		read = fmt.Sprintf("Box::new(%s)", read)
	}
	if r.Optional() {
		u.initLines = []string{
			fmt.Sprintf("%s%s: if !%s.is_null() {", indentField, f.I.Name, access),
			fmt.Sprintf("%s    Some(%s)", indentField, read),
			indentField + "} else {",
			indentField + "    None",
			indentField + "},",
		}
	} else {
		u.initLines = []string{fmt.Sprintf("%s%s: %s,", indentField, f.I.Name, read)}
	}

	iAccess := idiomStructBind + "." + f.I.Name
	back := BackwardName(target, iInner)
	if r.Optional() {
		inner := "v"
		if boxed {
			inner = "v.as_mut()"
		}
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: *mut %s = match %s.as_mut() {", indentBody, c, cType, iAccess),
			fmt.Sprintf("%s    Some(v) => unsafe { %s(%s) },", indentBody, back, inner),
			fmt.Sprintf("%s    None => core::ptr::null_mut(),", indentBody),
			indentBody + "};",
		}
	} else {
		ref := "&mut " + iAccess
		if boxed {
			ref = iAccess + ".as_mut()"
		}
		u.backLines = []string{
			fmt.Sprintf("%slet _%s: *mut %s = unsafe { %s(%s) };", indentBody, c, cType, back, ref),
		}
	}
	if f.U.Type != "" {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s as %s,", indentField, c, c, f.U.Type)}
	} else {
		u.cInit = []string{fmt.Sprintf("%s%s: _%s,", indentField, c, c)}
	}
	return u
}

// innerIdent strips Option, Box and reference wrappers and returns the plain
// type ident underneath, or "".
func innerIdent(ty string) string {
	t := rusttype.Parse(ty)
	for t != nil {
		switch {
		case t.IsOption:
			t = t.OptionInner
		case t.IsBox:
			t = t.BoxInner
		case t.IsReference:
			t = t.ReferenceInner
		default:
			if t.PathIdent != "" {
				return t.PathIdent
			}
			return ""
		}
	}
	return ""
}
