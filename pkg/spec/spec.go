// Package spec defines the declarative mapping documents that drive harness
// generation: a bidirectional field-by-field mapping between a pointer-based
// unidiomatic layout and its ownership-based idiomatic equivalent.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Pointer kinds accepted in a PtrShape.
const (
	KindSlice   = "slice"
	KindCString = "cstring"
	KindRef     = "ref"
)

// Nullability modes for pointer fields. NullEmpty is the default: a null
// pointer decodes to an empty value on the idiomatic side.
const (
	NullEmpty     = "empty"
	NullNullable  = "nullable"
	NullForbidden = "forbidden"
)

// Compare hints. Fields without a hint are excluded from roundtrip
// comparison.
const (
	CompareByValue = "by_value"
	CompareBySlice = "by_slice"
	CompareSkip    = "skip"
)

// Ownership hints.
const (
	OwnershipOwning    = "owning"
	OwnershipTransient = "transient"
)

// StructSpec maps one unidiomatic struct to its idiomatic counterpart.
// It is authored once, persisted as an immutable JSON artifact keyed by
// struct name, and never mutated in place; corrections produce a new version.
type StructSpec struct {
	Version    string       `json:"version,omitempty"`
	StructName string       `json:"struct_name,omitempty"`
	IType      string       `json:"i_type,omitempty"` // idiomatic type name; defaults to StructName
	Fields     []Field      `json:"fields"`
	Enum       *EnumMapping `json:"enum_mapping,omitempty"`
}

// IdiomaticType returns the idiomatic type name, falling back to the enum
// mapping's i_type and then the struct name.
func (s *StructSpec) IdiomaticType() string {
	if s.Enum != nil && s.Enum.IType != "" {
		return s.Enum.IType
	}
	if s.IType != "" {
		return s.IType
	}
	return s.StructName
}

// FunctionSpec maps a function's arguments, treated as fields of an
// anonymous unidiomatic struct. A field whose idiomatic name is "ret"
// represents the return value.
type FunctionSpec struct {
	Version      string  `json:"version,omitempty"`
	FunctionName string  `json:"function_name,omitempty"`
	Fields       []Field `json:"fields"`
}

// ReturnField returns the mapping for the return value, or nil.
func (s *FunctionSpec) ReturnField() *Field {
	for i := range s.Fields {
		if s.Fields[i].I.Name == "ret" {
			return &s.Fields[i]
		}
	}
	return nil
}

// Field is one bidirectional mapping unit.
type Field struct {
	U         UField `json:"u_field"`
	I         IField `json:"i_field"`
	Ownership string `json:"ownership,omitempty"`
	Compare   string `json:"compare,omitempty"`
	LLMNote   string `json:"llm_note,omitempty"`
}

// UField describes the unidiomatic side of a mapping.
type UField struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Shape Shape  `json:"shape,omitempty"`
}

// IField describes the idiomatic side of a mapping. A dot-path name ending
// in ".len" marks a derived-length field.
type IField struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Shape is either the literal string "scalar" or a {"ptr": {...}} object.
type Shape struct {
	Scalar bool
	Ptr    *PtrShape
}

// PtrShape refines a pointer field: its kind, length source and nullability.
type PtrShape struct {
	Kind     string `json:"kind"`
	LenFrom  string `json:"len_from,omitempty"`
	LenConst *int   `json:"len_const,omitempty"`
	Null     string `json:"null,omitempty"`
}

// Nullability returns the effective null mode, applying the default.
func (p *PtrShape) Nullability() string {
	if p == nil || p.Null == "" {
		return NullEmpty
	}
	return p.Null
}

func (s *Shape) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var tag string
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return err
		}
		if tag != "scalar" {
			return fmt.Errorf("unknown shape tag %q", tag)
		}
		s.Scalar = true
		return nil
	}
	var wrapper struct {
		Ptr *PtrShape `json:"ptr"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	s.Ptr = wrapper.Ptr
	return nil
}

func (s Shape) MarshalJSON() ([]byte, error) {
	if s.Scalar {
		return json.Marshal("scalar")
	}
	if s.Ptr != nil {
		return json.Marshal(map[string]*PtrShape{"ptr": s.Ptr})
	}
	return []byte("null"), nil
}

// IsZero reports whether no shape was declared at all.
func (s Shape) IsZero() bool {
	return !s.Scalar && s.Ptr == nil
}

// EnumMapping flattens a tagged union into an idiomatic sum type.
type EnumMapping struct {
	IKind    string    `json:"i_kind"` // always "enum"
	IType    string    `json:"i_type"`
	Variants []Variant `json:"variants"`
}

// Variant binds one tag value to the payload fields that are live under it.
// Payload fields of non-active variants are ignored during conversion.
type Variant struct {
	Name    string      `json:"name"`
	When    VariantWhen `json:"when"`
	Payload []Field     `json:"payload"`
}

// VariantWhen selects a variant: the named scalar tag field equals the
// literal value.
type VariantWhen struct {
	Tag    string      `json:"tag"`
	Equals json.Number `json:"equals"`
}

// ParseStruct decodes a struct mapping document. Unknown keys are permitted
// and ignored; structural checks happen separately in ValidateStruct.
func ParseStruct(data []byte) (*StructSpec, error) {
	var s StructSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse struct spec: %w", err)
	}
	return &s, nil
}

// ParseFunction decodes a function mapping document.
func ParseFunction(data []byte) (*FunctionSpec, error) {
	var s FunctionSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse function spec: %w", err)
	}
	return &s, nil
}

// FieldByUName returns the non-variant field with the given unidiomatic
// name, or nil.
func (s *StructSpec) FieldByUName(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].U.Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// UFieldType returns the declared unidiomatic type for a field name, looking
// through both top-level fields and variant payloads.
func (s *StructSpec) UFieldType(name string) string {
	if f := s.FieldByUName(name); f != nil {
		return f.U.Type
	}
	if s.Enum != nil {
		for _, v := range s.Enum.Variants {
			for i := range v.Payload {
				if v.Payload[i].U.Name == name {
					return v.Payload[i].U.Type
				}
			}
		}
	}
	return ""
}
