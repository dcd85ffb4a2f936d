package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/crossffi/bridgen/pkg/spec"
)

func asErr(err error, target any) bool { return errors.As(err, target) }

func assertContains(t *testing.T, src, want string) {
	t.Helper()
	if !strings.Contains(src, want) {
		t.Errorf("generated source missing %q\n----\n%s", want, src)
	}
}

func recordSpec() *spec.StructSpec {
	return &spec.StructSpec{
		StructName: "Record",
		Fields: []spec.Field{
			{U: spec.UField{Name: "name", Type: "*mut libc::c_char",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindCString, Null: spec.NullForbidden}}},
				I:       spec.IField{Name: "name", Type: "String"},
				Compare: spec.CompareByValue},
			{U: spec.UField{Name: "scores", Type: "*mut libc::c_uint",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindSlice, LenFrom: "count"}}},
				I:       spec.IField{Name: "scores", Type: "Vec<u32>"},
				Compare: spec.CompareBySlice},
			{U: spec.UField{Name: "count", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "scores.len"}},
		},
	}
}

func TestAssembleStructRecord(t *testing.T) {
	pair, err := AssembleStruct(recordSpec(), nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if len(pair.Unresolved) != 0 {
		t.Fatalf("unexpected unresolved fields: %+v", pair.Unresolved)
	}
	if pair.IdiomaticType != "Record" || pair.CType != "CRecord" {
		t.Errorf("names: %q / %q", pair.IdiomaticType, pair.CType)
	}

	src := pair.Source
	assertContains(t, src, "pub unsafe fn CRecord_to_Record_mut(ptr: *mut CRecord) -> &'static mut Record {")
	assertContains(t, src, "pub unsafe fn Record_to_CRecord_mut(idiom_struct: &mut Record) -> *mut CRecord {")
	assertContains(t, src, "assert!(!c_struct.name.is_null());")
	assertContains(t, src, "std::ffi::CStr::from_ptr(c_struct.name)")
	assertContains(t, src,
		"std::slice::from_raw_parts(c_struct.scores as *const u32, (c_struct.count as usize))")
	assertContains(t, src, "let _count = idiom_struct.scores.len() as libc::c_int;")
	assertContains(t, src, "count: _count,")
	assertContains(t, src, "Box::leak(Box::new(value))")
	assertContains(t, src, "Box::into_raw(Box::new(c_new))")

	if n := strings.Count(src, "count: _count,"); n != 1 {
		t.Errorf("length literal emitted %d times, want 1", n)
	}
}

func TestAssembleStructNullableCString(t *testing.T) {
	s := recordSpec()
	s.Fields[0].U.Shape.Ptr.Null = spec.NullNullable
	pair, err := AssembleStruct(s, nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	assertContains(t, pair.Source, "Some(unsafe { std::ffi::CStr::from_ptr(c_struct.name) }")
	assertContains(t, pair.Source, "None => core::ptr::null_mut(),")
	if strings.Contains(pair.Source, "assert!(!c_struct.name.is_null());") {
		t.Error("nullable pointer must not be asserted non-null")
	}
}

func TestAssembleStructSelfReference(t *testing.T) {
	s := &spec.StructSpec{
		StructName: "Node",
		Fields: []spec.Field{
			{U: spec.UField{Name: "value", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "value", Type: "i32"}, Compare: spec.CompareByValue},
			{U: spec.UField{Name: "next", Type: "*mut CNode",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef, Null: spec.NullNullable}}},
				I: spec.IField{Name: "next", Type: "Option<Box<Node>>"}},
		},
	}
	pair, err := AssembleStruct(s, nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if len(pair.Unresolved) != 0 {
		t.Fatalf("self reference must resolve through its own pair: %+v", pair.Unresolved)
	}
	assertContains(t, pair.Source, "CNode_to_Node_mut(c_struct.next as *mut CNode)")
	assertContains(t, pair.Source, "Some(v) => unsafe { Node_to_CNode_mut(v.as_mut()) },")
}

func TestAssembleStructUnknownRefTarget(t *testing.T) {
	s := &spec.StructSpec{
		StructName: "Holder",
		Fields: []spec.Field{
			{U: spec.UField{Name: "cfg", Type: "*mut CConfig",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "cfg", Type: "Box<Config>"}},
		},
	}
	pair, err := AssembleStruct(s, NoResolver)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if len(pair.Unresolved) != 1 {
		t.Fatalf("unresolved = %+v, want one entry", pair.Unresolved)
	}
	if !strings.Contains(pair.Unresolved[0].Reason, "no converter pair") {
		t.Errorf("reason = %q", pair.Unresolved[0].Reason)
	}
	assertContains(t, pair.Source, "// TODO: cfg:")
}

func TestAssembleStructNoteOnlyField(t *testing.T) {
	s := recordSpec()
	s.Fields = append(s.Fields, spec.Field{
		U: spec.UField{Name: "hdr.alias", Type: "*mut libc::c_void",
			Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
		I:       spec.IField{Name: "alias"},
		LLMNote: "aliases the first header entry; needs manual mapping",
	})
	pair, err := AssembleStruct(s, nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if len(pair.Unresolved) != 1 {
		t.Fatalf("unresolved = %+v, want one entry", pair.Unresolved)
	}
	u := pair.Unresolved[0]
	if u.Note == "" || u.Field != "hdr.alias" {
		t.Errorf("unresolved entry must carry the llm_note: %+v", u)
	}
}

func taggedValueSpec() *spec.StructSpec {
	return &spec.StructSpec{
		StructName: "TaggedValue",
		Fields: []spec.Field{
			{U: spec.UField{Name: "tag", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "tag"}},
			{U: spec.UField{Name: "int_val", Type: "libc::c_long", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "0"}},
			{U: spec.UField{Name: "str_val", Type: "*mut libc::c_char",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindCString}}},
				I: spec.IField{Name: "0", Type: "String"}},
		},
		Enum: &spec.EnumMapping{
			IKind: "enum",
			IType: "Value",
			Variants: []spec.Variant{
				{Name: "Int", When: spec.VariantWhen{Tag: "tag", Equals: "0"},
					Payload: []spec.Field{{
						U: spec.UField{Name: "int_val", Type: "libc::c_long", Shape: spec.Shape{Scalar: true}},
						I: spec.IField{Name: "0"}}}},
				{Name: "Str", When: spec.VariantWhen{Tag: "tag", Equals: "1"},
					Payload: []spec.Field{{
						U: spec.UField{Name: "str_val", Type: "*mut libc::c_char",
							Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindCString}}},
						I: spec.IField{Name: "0", Type: "String"}}}},
			},
		},
	}
}

func TestAssembleEnum(t *testing.T) {
	pair, err := AssembleStruct(taggedValueSpec(), nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if pair.Skeleton || len(pair.Unresolved) != 0 {
		t.Fatalf("enum should assemble cleanly: skeleton=%v unresolved=%+v",
			pair.Skeleton, pair.Unresolved)
	}

	src := pair.Source
	assertContains(t, src, "pub unsafe fn CTaggedValue_to_Value_mut(ptr: *mut CTaggedValue) -> &'static mut Value {")
	assertContains(t, src, "match c_struct.tag {")
	assertContains(t, src, "0 => Value::Int(")
	assertContains(t, src, "c_struct.int_val as isize,")
	assertContains(t, src, "1 => Value::Str(")
	assertContains(t, src, `other => panic!("unhandled CTaggedValue tag value: {:?}", other),`)

	// Backward: tag written back, inactive payload zeroed.
	assertContains(t, src, "Value::Int(p0) => {")
	assertContains(t, src, "tag: 0 as libc::c_int,")
	assertContains(t, src, "int_val: *p0 as libc::c_long,")
	assertContains(t, src, "str_val: unsafe { core::mem::zeroed() },")
	assertContains(t, src, "Value::Str(p0) => {")
	assertContains(t, src, "int_val: unsafe { core::mem::zeroed() },")
	assertContains(t, src, "std::ffi::CString::new(p0.clone())")
}

func TestAssembleEnumSlicePayloadBlocks(t *testing.T) {
	s := taggedValueSpec()
	s.Fields = append(s.Fields, spec.Field{
		U: spec.UField{Name: "n", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
		I: spec.IField{Name: "n"}})
	s.Enum.Variants[0].Payload = []spec.Field{{
		U: spec.UField{Name: "int_val", Type: "*mut libc::c_long",
			Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindSlice, LenFrom: "n"}}},
		I: spec.IField{Name: "0", Type: "Vec<isize>"}}}
	pair, err := AssembleStruct(s, nil)
	if err != nil {
		t.Fatalf("AssembleStruct: %v", err)
	}
	if !pair.Skeleton {
		t.Fatal("slice payload must degrade to a skeleton pair")
	}
	assertContains(t, pair.Source, "unimplemented!(")
	if len(pair.Unresolved) == 0 {
		t.Error("skeleton pair must record its blockers")
	}
}

func TestStructDeps(t *testing.T) {
	s := &spec.StructSpec{
		StructName: "Tree",
		Fields: []spec.Field{
			{U: spec.UField{Name: "left", Type: "*mut CTree",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef, Null: spec.NullNullable}}},
				I: spec.IField{Name: "left", Type: "Option<Box<Tree>>"}},
			{U: spec.UField{Name: "meta", Type: "*mut CMeta",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "meta", Type: "Box<Meta>"}},
			{U: spec.UField{Name: "hint", Type: "*mut libc::c_int",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "hint", Type: "Box<i32>"}},
		},
	}
	deps := StructDeps(s)
	if len(deps) != 1 || deps[0] != "Meta" {
		t.Errorf("StructDeps = %v, want [Meta]", deps)
	}
}

func TestOrderRespectsDependencies(t *testing.T) {
	meta := &spec.StructSpec{StructName: "Meta"}
	tree := &spec.StructSpec{
		StructName: "Tree",
		Fields: []spec.Field{
			{U: spec.UField{Name: "meta", Type: "*mut CMeta",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "meta", Type: "Box<Meta>"}},
		},
	}
	order, err := Order(map[string]*spec.StructSpec{"Tree": tree, "Meta": meta})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != 2 || order[0] != "Meta" || order[1] != "Tree" {
		t.Errorf("order = %v, want [Meta Tree]", order)
	}
}

func TestOrderUnresolvedDependency(t *testing.T) {
	tree := &spec.StructSpec{
		StructName: "Tree",
		Fields: []spec.Field{
			{U: spec.UField{Name: "meta", Type: "*mut CMeta",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "meta", Type: "Box<Meta>"}},
		},
	}
	_, err := Order(map[string]*spec.StructSpec{"Tree": tree})
	var depErr *UnresolvedDependencyError
	if !asErr(err, &depErr) {
		t.Fatalf("err = %v, want UnresolvedDependencyError", err)
	}
	if depErr.Missing != "Meta" {
		t.Errorf("Missing = %q", depErr.Missing)
	}
}

func TestOrderCycle(t *testing.T) {
	a := &spec.StructSpec{
		StructName: "A",
		Fields: []spec.Field{
			{U: spec.UField{Name: "b", Type: "*mut CB",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "b", Type: "Box<B>"}},
		},
	}
	b := &spec.StructSpec{
		StructName: "B",
		Fields: []spec.Field{
			{U: spec.UField{Name: "a", Type: "*mut CA",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef}}},
				I: spec.IField{Name: "a", Type: "Box<A>"}},
		},
	}
	_, err := Order(map[string]*spec.StructSpec{"A": a, "B": b})
	var cycErr *CycleError
	if !asErr(err, &cycErr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cycErr.Members) < 3 {
		t.Errorf("cycle members = %v", cycErr.Members)
	}
}

func TestOrderSelfReferenceIsNotACycle(t *testing.T) {
	node := &spec.StructSpec{
		StructName: "Node",
		Fields: []spec.Field{
			{U: spec.UField{Name: "next", Type: "*mut CNode",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef, Null: spec.NullNullable}}},
				I: spec.IField{Name: "next", Type: "Option<Box<Node>>"}},
		},
	}
	order, err := Order(map[string]*spec.StructSpec{"Node": node})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != 1 || order[0] != "Node" {
		t.Errorf("order = %v", order)
	}
}

func TestAssembleFunctionSliceInOut(t *testing.T) {
	fs := &spec.FunctionSpec{
		FunctionName: "scale",
		Fields: []spec.Field{
			{U: spec.UField{Name: "values", Type: "*mut f64",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindSlice, LenFrom: "n"}}},
				I: spec.IField{Name: "values", Type: "&mut [f64]"}},
			{U: spec.UField{Name: "n", Type: "usize", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "values.len"}},
			{U: spec.UField{Name: "factor", Type: "libc::c_double", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "factor", Type: "f64"}},
		},
	}
	h, err := AssembleFunction(fs, nil)
	if err != nil {
		t.Fatalf("AssembleFunction: %v", err)
	}
	if len(h.Unresolved) != 0 {
		t.Fatalf("unresolved = %+v", h.Unresolved)
	}
	if h.WrapperName != "scale_c" {
		t.Errorf("WrapperName = %q", h.WrapperName)
	}

	src := h.Source
	assertContains(t, src, "pub unsafe fn scale_c(values: *mut f64, n: usize, factor: libc::c_double) {")
	assertContains(t, src, "std::slice::from_raw_parts(values as *const f64, (n as usize))")
	assertContains(t, src, "scale(values_i.as_mut_slice(), factor as f64);")
	assertContains(t, src, "core::ptr::copy_nonoverlapping(values_i.as_ptr(), values, values_i.len());")
}

func TestAssembleFunctionScalarReturn(t *testing.T) {
	fs := &spec.FunctionSpec{
		FunctionName: "sum",
		Fields: []spec.Field{
			{U: spec.UField{Name: "a", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "a", Type: "i32"}},
			{U: spec.UField{Name: "b", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "b", Type: "i32"}},
			{U: spec.UField{Name: "result", Type: "libc::c_int", Shape: spec.Shape{Scalar: true}},
				I: spec.IField{Name: "ret", Type: "i32"}},
		},
	}
	h, err := AssembleFunction(fs, nil)
	if err != nil {
		t.Fatalf("AssembleFunction: %v", err)
	}
	src := h.Source
	assertContains(t, src, "pub unsafe fn sum_c(a: libc::c_int, b: libc::c_int) -> libc::c_int {")
	assertContains(t, src, "let __ret = sum(a as i32, b as i32);")
	assertContains(t, src, "__ret as libc::c_int")
}

func TestAssembleFunctionStructArg(t *testing.T) {
	fs := &spec.FunctionSpec{
		FunctionName: "tick",
		Fields: []spec.Field{
			{U: spec.UField{Name: "cfg", Type: "*mut CConfig",
				Shape: spec.Shape{Ptr: &spec.PtrShape{Kind: spec.KindRef, Null: spec.NullForbidden}}},
				I: spec.IField{Name: "cfg", Type: "&mut Config"}},
		},
	}
	has := resolverFunc(func(name string) bool { return name == "Config" })
	h, err := AssembleFunction(fs, has)
	if err != nil {
		t.Fatalf("AssembleFunction: %v", err)
	}
	if len(h.Unresolved) != 0 {
		t.Fatalf("unresolved = %+v", h.Unresolved)
	}
	src := h.Source
	assertContains(t, src, "assert!(!cfg.is_null());")
	assertContains(t, src, "CConfig_to_Config_mut(cfg as *mut CConfig)")
	assertContains(t, src, "Config_to_CConfig_mut(cfg_i)")
	assertContains(t, src, "core::ptr::copy_nonoverlapping(_cfg_back, cfg as *mut CConfig, 1);")
}
