package spec

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds all validation errors for a spec. An invalid spec
// is a hard stop: no codegen attempt proceeds on it.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid returns true if no validation errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message from all validation errors.
func (r ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

var validCompareHints = map[string]bool{
	CompareByValue: true,
	CompareBySlice: true,
	CompareSkip:    true,
}

var validOwnershipHints = map[string]bool{
	OwnershipOwning:    true,
	OwnershipTransient: true,
}

var validNullModes = map[string]bool{
	NullEmpty:     true,
	NullNullable:  true,
	NullForbidden: true,
}

// ValidateStruct checks a StructSpec for structural correctness: required
// fields, enumerated values, and cross-field references (len_from and the
// enum tag must name existing scalar fields). Unknown extra keys were
// already dropped at parse time and are never an error.
func ValidateStruct(s *StructSpec, expectName string) ValidationResult {
	var result ValidationResult

	if s == nil {
		result.add("(document)", "empty document")
		return result
	}
	if expectName != "" && s.StructName != "" && s.StructName != expectName {
		result.add("struct_name", "mismatch: %q != %q", s.StructName, expectName)
	}
	if len(s.Fields) == 0 {
		result.add("fields", "required")
	}

	scalars := scalarFieldSet(s.Fields)
	seen := make(map[string]bool)
	for i := range s.Fields {
		path := fmt.Sprintf("fields[%d]", i)
		validateField(&result, path, &s.Fields[i], scalars)
		name := s.Fields[i].U.Name
		if name != "" {
			if seen[name] {
				result.add(path+".u_field.name", "duplicate name %q", name)
			}
			seen[name] = true
		}
	}

	if s.Enum != nil {
		validateEnum(&result, s, scalars)
	}

	return result
}

// ValidateFunction checks a FunctionSpec. Arguments follow the same field
// rules as struct fields; at most one field may map the return value.
func ValidateFunction(s *FunctionSpec, expectName string) ValidationResult {
	var result ValidationResult

	if s == nil {
		result.add("(document)", "empty document")
		return result
	}
	if expectName != "" && s.FunctionName != "" && s.FunctionName != expectName {
		result.add("function_name", "mismatch: %q != %q", s.FunctionName, expectName)
	}
	if len(s.Fields) == 0 {
		result.add("fields", "required")
	}

	scalars := scalarFieldSet(s.Fields)
	seen := make(map[string]bool)
	rets := 0
	for i := range s.Fields {
		path := fmt.Sprintf("fields[%d]", i)
		validateField(&result, path, &s.Fields[i], scalars)
		name := s.Fields[i].U.Name
		if name != "" {
			if seen[name] {
				result.add(path+".u_field.name", "duplicate name %q", name)
			}
			seen[name] = true
		}
		if s.Fields[i].I.Name == "ret" {
			rets++
		}
	}
	if rets > 1 {
		result.add("fields", "multiple return-value mappings (i_field.name == \"ret\")")
	}

	return result
}

func scalarFieldSet(fields []Field) map[string]bool {
	scalars := make(map[string]bool)
	for i := range fields {
		if fields[i].U.Shape.Scalar && fields[i].U.Name != "" {
			scalars[fields[i].U.Name] = true
		}
	}
	return scalars
}

func validateField(result *ValidationResult, path string, f *Field, scalars map[string]bool) {
	if f.U.Name == "" {
		result.add(path+".u_field.name", "required")
	}
	if f.I.Name == "" {
		result.add(path+".i_field.name", "required")
	}
	if f.Compare != "" && !validCompareHints[f.Compare] {
		result.add(path+".compare", "unknown hint %q", f.Compare)
	}
	if f.Ownership != "" && !validOwnershipHints[f.Ownership] {
		result.add(path+".ownership", "unknown hint %q", f.Ownership)
	}

	if f.U.Shape.IsZero() {
		result.add(path+".u_field.shape", "required")
		return
	}
	if f.U.Shape.Scalar {
		return
	}

	ptr := f.U.Shape.Ptr
	if ptr.Null != "" && !validNullModes[ptr.Null] {
		result.add(path+".u_field.shape.ptr.null", "unknown mode %q", ptr.Null)
	}

	switch ptr.Kind {
	case KindSlice:
		hasFrom := ptr.LenFrom != ""
		hasConst := ptr.LenConst != nil
		if hasFrom == hasConst {
			result.add(path+".u_field.shape.ptr",
				"slice requires exactly one of len_from or len_const")
		}
		if hasFrom && !scalars[ptr.LenFrom] {
			result.add(path+".u_field.shape.ptr.len_from",
				"%q does not name a scalar field in this spec", ptr.LenFrom)
		}
		if hasConst && *ptr.LenConst < 0 {
			result.add(path+".u_field.shape.ptr.len_const",
				"must be non-negative, got %d", *ptr.LenConst)
		}
	case KindCString:
		if ptr.LenFrom != "" || ptr.LenConst != nil {
			result.add(path+".u_field.shape.ptr",
				"cstring carries no explicit length (terminator-delimited)")
		}
	case KindRef:
		// ref is definitionally a slice with len_const = 1; an explicit
		// length source is redundant but a conflicting one is an error.
		if ptr.LenConst != nil && *ptr.LenConst != 1 {
			result.add(path+".u_field.shape.ptr.len_const",
				"ref implies len_const = 1, got %d", *ptr.LenConst)
		}
	case "":
		result.add(path+".u_field.shape.ptr.kind", "required")
	default:
		result.add(path+".u_field.shape.ptr.kind", "unknown kind %q", ptr.Kind)
	}
}

func validateEnum(result *ValidationResult, s *StructSpec, scalars map[string]bool) {
	e := s.Enum
	if e.IKind != "enum" {
		result.add("enum_mapping.i_kind", "must be \"enum\", got %q", e.IKind)
	}
	if e.IType == "" {
		result.add("enum_mapping.i_type", "required")
	}
	if len(e.Variants) == 0 {
		result.add("enum_mapping.variants", "required")
	}

	names := make(map[string]bool)
	equals := make(map[string]bool)
	for i, v := range e.Variants {
		path := fmt.Sprintf("enum_mapping.variants[%d]", i)
		if v.Name == "" {
			result.add(path+".name", "required")
		} else if names[v.Name] {
			result.add(path+".name", "duplicate variant %q", v.Name)
		}
		names[v.Name] = true

		if v.When.Tag == "" {
			result.add(path+".when.tag", "required")
		} else if !scalars[v.When.Tag] {
			result.add(path+".when.tag",
				"%q does not name a scalar field in this spec", v.When.Tag)
		}
		if v.When.Equals == "" {
			result.add(path+".when.equals", "required")
		} else if equals[v.When.Equals.String()] {
			result.add(path+".when.equals",
				"duplicate tag value %s", v.When.Equals.String())
		}
		equals[v.When.Equals.String()] = true

		payloadScalars := scalarFieldSet(v.Payload)
		for k := range scalars {
			payloadScalars[k] = true
		}
		for j := range v.Payload {
			validateField(result, fmt.Sprintf("%s.payload[%d]", path, j),
				&v.Payload[j], payloadScalars)
		}
	}
}
