package codegen

import (
	"fmt"
	"strings"

	"github.com/crossffi/bridgen/pkg/rusttype"
	"github.com/crossffi/bridgen/pkg/shape"
	"github.com/crossffi/bridgen/pkg/spec"
)

// FunctionHarness is the generated wrapper that keeps a function callable
// with its unidiomatic signature: arguments are converted in, the idiomatic
// implementation is invoked, and mutations plus the return value are
// converted back out.
type FunctionHarness struct {
	FunctionName string
	WrapperName  string
	Source       string
	Unresolved   []Unresolved
}

// AssembleFunction builds the wrapper for one function spec. The wrapper is
// named <fn>_c and delegates to the idiomatic <fn>. Arguments the rule table
// cannot convert surface as TODO markers with a todo!() call argument, so
// the gap fails the build loudly instead of passing garbage.
func AssembleFunction(fs *spec.FunctionSpec, res Resolver) (*FunctionHarness, error) {
	if v := spec.ValidateFunction(fs, fs.FunctionName); !v.Valid() {
		return nil, fmt.Errorf("function %q: %s", fs.FunctionName, v.Error())
	}
	if res == nil {
		res = NoResolver
	}

	h := &FunctionHarness{
		FunctionName: fs.FunctionName,
		WrapperName:  fs.FunctionName + "_c",
	}
	data := fnHarnessData{Name: h.WrapperName}

	ret := fs.ReturnField()

	derivedLen := make(map[string]bool)
	for i := range fs.Fields {
		f := &fs.Fields[i]
		if f.U.Shape.Scalar && strings.HasSuffix(f.I.Name, ".len") {
			derivedLen[f.U.Name] = true
		}
	}

	var params []string
	var callArgs []string
	fail := func(f *spec.Field, reason string) {
		h.Unresolved = append(h.Unresolved, Unresolved{
			Spec:   fs.FunctionName,
			Field:  f.U.Name,
			Reason: reason,
			Note:   f.LLMNote,
		})
		data.PreLines = append(data.PreLines,
			fmt.Sprintf("%s// TODO: %s: %s", indentBody, f.U.Name, reason))
		callArgs = append(callArgs, "todo!()")
	}

	for i := range fs.Fields {
		f := &fs.Fields[i]
		if ret != nil && f == ret {
			continue
		}
		if f.U.Type == "" {
			params = append(params, f.U.Name+": *mut u8")
			fail(f, "argument needs a declared unidiomatic type")
			continue
		}
		params = append(params, f.U.Name+": "+f.U.Type)
		if derivedLen[f.U.Name] {
			// Length argument consumed by the slice it measures.
			continue
		}

		r, err := shape.Classify(f)
		if err != nil {
			fail(f, err.Error())
			continue
		}
		switch r.Kind {
		case shape.Scalar:
			if cast := rusttype.ScalarCast(f.U.Type); cast != "" {
				callArgs = append(callArgs, fmt.Sprintf("%s as %s", f.U.Name, cast))
			} else {
				callArgs = append(callArgs, f.U.Name)
			}
		case shape.CString:
			pre, arg := argCString(f, r)
			data.PreLines = append(data.PreLines, pre...)
			callArgs = append(callArgs, arg)
		case shape.Slice:
			pre, arg, post := argSlice(f, r)
			data.PreLines = append(data.PreLines, pre...)
			data.PostLines = append(data.PostLines, post...)
			callArgs = append(callArgs, arg)
		case shape.SingleRef:
			pre, arg, post, reason := argRef(f, r, res)
			if reason != "" {
				fail(f, reason)
				continue
			}
			data.PreLines = append(data.PreLines, pre...)
			data.PostLines = append(data.PostLines, post...)
			callArgs = append(callArgs, arg)
		}
	}

	call := fmt.Sprintf("%s(%s)", fs.FunctionName, strings.Join(callArgs, ", "))
	switch {
	case ret == nil:
		data.CallLine = indentBody + call + ";"
	case ret.U.Shape.Scalar:
		if ret.U.Type == "" {
			fail(ret, "return value needs a declared unidiomatic type")
			data.CallLine = indentBody + call + ";"
			break
		}
		data.RetArrow = " -> " + ret.U.Type
		data.CallLine = fmt.Sprintf("%slet __ret = %s;", indentBody, call)
		data.RetLines = []string{fmt.Sprintf("%s__ret as %s", indentBody, ret.U.Type)}
	case ret.U.Shape.Ptr != nil && ret.U.Shape.Ptr.Kind == spec.KindCString:
		uType := ret.U.Type
		if uType == "" {
			uType = "*mut libc::c_char"
		}
		data.RetArrow = " -> " + uType
		data.CallLine = fmt.Sprintf("%slet __ret = %s;", indentBody, call)
		if ret.U.Shape.Ptr.Nullability() == spec.NullNullable {
			data.RetLines = []string{
				indentBody + "match __ret {",
				indentBody + "    Some(s) => std::ffi::CString::new(s)",
				indentBody + "        .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())",
				fmt.Sprintf("%s        .into_raw() as %s,", indentBody, uType),
				indentBody + "    None => core::ptr::null_mut(),",
				indentBody + "}",
			}
		} else {
			data.RetLines = []string{
				indentBody + "std::ffi::CString::new(__ret)",
				indentBody + "    .unwrap_or_else(|_| std::ffi::CString::new(\"\").unwrap())",
				fmt.Sprintf("%s    .into_raw() as %s", indentBody, uType),
			}
		}
	default:
		fail(ret, "unsupported return value shape")
		data.CallLine = indentBody + call + ";"
	}

	data.Params = strings.Join(params, ", ")
	h.Source = render(fnHarnessTmpl, data)
	return h, nil
}

func argCString(f *spec.Field, r shape.Resolved) (pre []string, arg string) {
	name := f.U.Name
	local := name + "_i"
	decode := fmt.Sprintf("unsafe { std::ffi::CStr::from_ptr(%s) }.to_string_lossy().into_owned()", name)

	if !r.Nullable() {
		pre = append(pre, fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, name))
	}
	if r.Optional() {
		pre = append(pre,
			fmt.Sprintf("%slet %s: Option<String> = if !%s.is_null() {", indentBody, local, name),
			fmt.Sprintf("%s    Some(%s)", indentBody, decode),
			indentBody+"} else {",
			indentBody+"    None",
			indentBody+"};",
		)
		if rusttype.StringKind(f.I.Type) == "option_borrowed" {
			return pre, local + ".as_deref()"
		}
		return pre, local
	}
	pre = append(pre,
		fmt.Sprintf("%slet %s: String = if !%s.is_null() {", indentBody, local, name),
		fmt.Sprintf("%s    %s", indentBody, decode),
		indentBody+"} else {",
		indentBody+"    String::new()",
		indentBody+"};",
	)
	if rusttype.StringKind(f.I.Type) == "borrowed" {
		return pre, "&" + local
	}
	return pre, local
}

func argSlice(f *spec.Field, r shape.Resolved) (pre []string, arg string, post []string) {
	name := f.U.Name
	local := name + "_i"
	elem := rusttype.PointerElem(f.U.Type)
	lenExpr := r.LengthExpr("")
	view := fmt.Sprintf("unsafe { std::slice::from_raw_parts(%s as *const %s, %s) }.to_vec()",
		name, elem, lenExpr)

	if !r.Nullable() {
		pre = append(pre, fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, name))
		pre = append(pre, fmt.Sprintf("%slet mut %s: Vec<%s> = %s;", indentBody, local, elem, view))
	} else if r.Optional() {
		pre = append(pre,
			fmt.Sprintf("%slet mut %s: Option<Vec<%s>> = if !%s.is_null() && %s > 0 {", indentBody, local, elem, name, lenExpr),
			fmt.Sprintf("%s    Some(%s)", indentBody, view),
			indentBody+"} else {",
			indentBody+"    None",
			indentBody+"};",
		)
	} else {
		pre = append(pre,
			fmt.Sprintf("%slet mut %s: Vec<%s> = if !%s.is_null() && %s > 0 {", indentBody, local, elem, name, lenExpr),
			fmt.Sprintf("%s    %s", indentBody, view),
			indentBody+"} else {",
			indentBody+"    Vec::new()",
			indentBody+"};",
		)
	}

	isSlice, _, _, mutable := rusttype.SliceInfo(f.I.Type)
	ptrMut := strings.HasPrefix(rusttype.Parse(f.U.Type).Normalized, "*mut")
	switch {
	case r.Optional() && isSlice && mutable:
		arg = local + ".as_deref_mut()"
	case r.Optional() && isSlice:
		arg = local + ".as_deref()"
	case r.Optional():
		arg = local
	case isSlice && mutable:
		arg = local + ".as_mut_slice()"
		if ptrMut {
			post = append(post, fmt.Sprintf(
				"%sunsafe { core::ptr::copy_nonoverlapping(%s.as_ptr(), %s, %s.len()); }",
				indentBody, local, name, local))
		}
	case isSlice:
		arg = local + ".as_slice()"
	default:
		arg = local
	}
	return pre, arg, post
}

func argRef(f *spec.Field, r shape.Resolved, res Resolver) (pre []string, arg string, post []string, reason string) {
	name := f.U.Name
	local := name + "_i"
	base := rusttype.PointerBaseIdent(f.U.Type)
	if base == "" {
		return nil, "", nil, fmt.Sprintf("ref argument needs a pointer type, got %q", f.U.Type)
	}

	if !r.Nullable() {
		pre = append(pre, fmt.Sprintf("%sassert!(!%s.is_null());", indentBody, name))
	}

	if rusttype.IsNumericPrimitive(base) || rusttype.ScalarCast(base) != "" ||
		strings.HasPrefix(base, "c_") {
		elem := rusttype.PointerElem(f.U.Type)
		pre = append(pre, fmt.Sprintf("%slet mut %s: %s = unsafe { *(%s as *const %s) };",
			indentBody, local, elem, name, elem))
		if rusttype.Parse(f.I.Type).IsReference {
			arg = "&mut " + local
		} else {
			arg = local
		}
		if t := rusttype.Parse(f.U.Type); t.PointerInner != nil &&
			strings.HasPrefix(t.Normalized, "*mut") {
			post = append(post, fmt.Sprintf("%sunsafe { *%s = %s as %s; }",
				indentBody, name, local, t.PointerInner.Normalized))
		}
		return pre, arg, post, ""
	}

	target := strings.TrimPrefix(base, "C")
	if !res.Has(target) {
		return nil, "", nil, fmt.Sprintf("no converter pair for referenced struct %q", target)
	}
	iInner := innerIdent(f.I.Type)
	if iInner == "" {
		return nil, "", nil, fmt.Sprintf("cannot name the idiomatic target type in %q", f.I.Type)
	}
	cType := CTypeName(target)

	if r.Optional() {
		pre = append(pre,
			fmt.Sprintf("%slet %s: Option<&'static mut %s> = if !%s.is_null() {", indentBody, local, iInner, name),
			fmt.Sprintf("%s    Some(unsafe { %s(%s as *mut %s) })", indentBody, ForwardName(target, iInner), name, cType),
			indentBody+"} else {",
			indentBody+"    None",
			indentBody+"};",
		)
		return pre, local, nil, ""
	}

	pre = append(pre, fmt.Sprintf("%slet %s: &'static mut %s = unsafe { %s(%s as *mut %s) };",
		indentBody, local, iInner, ForwardName(target, iInner), name, cType))
	// The caller observes mutations through its own pointer, so the
	// updated value is copied back over the original allocation.
	post = append(post,
		fmt.Sprintf("%slet _%s_back = unsafe { %s(%s) };", indentBody, name, BackwardName(target, iInner), local),
		fmt.Sprintf("%sunsafe { core::ptr::copy_nonoverlapping(_%s_back, %s as *mut %s, 1); }",
			indentBody, name, name, cType),
	)
	return pre, local, post, ""
}
