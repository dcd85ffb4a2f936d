package spec

import (
	"encoding/json"
	"testing"
)

const studentSpecJSON = `{
  "struct_name": "Student",
  "i_type": "Student",
  "fields": [
    {
      "u_field": {"name": "name", "type": "*mut libc::c_char", "shape": {"ptr": {"kind": "cstring", "null": "forbidden"}}},
      "i_field": {"name": "name", "type": "String"},
      "compare": "by_value"
    },
    {
      "u_field": {"name": "scores", "type": "*mut u32", "shape": {"ptr": {"kind": "slice", "len_from": "count"}}},
      "i_field": {"name": "scores", "type": "Vec<u32>"},
      "compare": "by_value"
    },
    {
      "u_field": {"name": "count", "type": "libc::c_int", "shape": "scalar"},
      "i_field": {"name": "scores.len"}
    }
  ]
}`

func TestParseStruct(t *testing.T) {
	s, err := ParseStruct([]byte(studentSpecJSON))
	if err != nil {
		t.Fatalf("ParseStruct: %v", err)
	}
	if s.StructName != "Student" {
		t.Errorf("struct_name = %q, want Student", s.StructName)
	}
	if len(s.Fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(s.Fields))
	}
	if !s.Fields[2].U.Shape.Scalar {
		t.Error("count should parse as scalar shape")
	}
	ptr := s.Fields[1].U.Shape.Ptr
	if ptr == nil || ptr.Kind != KindSlice || ptr.LenFrom != "count" {
		t.Errorf("scores shape = %+v, want slice with len_from=count", ptr)
	}
	if got := s.Fields[0].U.Shape.Ptr.Nullability(); got != NullForbidden {
		t.Errorf("name nullability = %q, want forbidden", got)
	}
}

func TestParseStructUnknownKeysIgnored(t *testing.T) {
	doc := `{"struct_name": "X", "reviewer_note": "free text", "fields": [
		{"u_field": {"name": "a", "shape": "scalar"}, "i_field": {"name": "a"}, "extra_hint": 7}
	]}`
	s, err := ParseStruct([]byte(doc))
	if err != nil {
		t.Fatalf("unknown keys must not fail parsing: %v", err)
	}
	if vr := ValidateStruct(s, "X"); !vr.Valid() {
		t.Errorf("unknown keys must not fail validation: %s", vr.Error())
	}
}

func TestShapeRoundtrip(t *testing.T) {
	one := 1
	shapes := []Shape{
		{Scalar: true},
		{Ptr: &PtrShape{Kind: KindCString, Null: NullNullable}},
		{Ptr: &PtrShape{Kind: KindRef, LenConst: &one}},
	}
	for _, s := range shapes {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal shape: %v", err)
		}
		var back Shape
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal shape %s: %v", data, err)
		}
		if back.Scalar != s.Scalar || (back.Ptr == nil) != (s.Ptr == nil) {
			t.Errorf("shape did not round-trip: %s", data)
		}
	}
}

func TestShapeRejectsUnknownTag(t *testing.T) {
	var s Shape
	if err := json.Unmarshal([]byte(`"vector"`), &s); err == nil {
		t.Error("expected error for unknown shape tag")
	}
}

func TestIdiomaticTypeFallback(t *testing.T) {
	s := &StructSpec{StructName: "Node"}
	if got := s.IdiomaticType(); got != "Node" {
		t.Errorf("IdiomaticType = %q, want Node", got)
	}
	s.IType = "TreeNode"
	if got := s.IdiomaticType(); got != "TreeNode" {
		t.Errorf("IdiomaticType = %q, want TreeNode", got)
	}
	s.Enum = &EnumMapping{IType: "Value"}
	if got := s.IdiomaticType(); got != "Value" {
		t.Errorf("IdiomaticType = %q, want Value", got)
	}
}

func TestFunctionReturnField(t *testing.T) {
	fs := &FunctionSpec{Fields: []Field{
		{U: UField{Name: "x", Shape: Shape{Scalar: true}}, I: IField{Name: "x"}},
		{U: UField{Name: "out", Shape: Shape{Scalar: true}}, I: IField{Name: "ret"}},
	}}
	ret := fs.ReturnField()
	if ret == nil || ret.U.Name != "out" {
		t.Fatalf("ReturnField = %+v, want field out", ret)
	}
}
