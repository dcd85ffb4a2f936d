// Package rusttype analyzes the Rust type strings that appear in mapping
// specs. It recognizes the small vocabulary the codegen rules care about:
// Option/Box wrappers, references, raw pointers, slices, string types and
// the libc scalar aliases.
package rusttype

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Traits describes the structure of a parsed Rust type.
type Traits struct {
	Raw        string
	Normalized string

	IsOption    bool
	OptionInner *Traits

	IsBox    bool
	BoxInner *Traits

	IsReference    bool
	IsMutReference bool
	ReferenceInner *Traits

	// PointerDepth counts leading *mut/*const layers.
	PointerDepth int
	PointerInner *Traits

	IsSlice   bool
	SliceElem string

	IsString bool // String
	IsStr    bool // str

	// PathIdent is the last path segment of a plain named type
	// (e.g. "c_char" for "libc::c_char").
	PathIdent string
}

// libcScalarToPrimitive maps libc scalar aliases to the primitive used on
// the idiomatic side. Matches the cast table used by the field dispatcher.
var libcScalarToPrimitive = map[string]string{
	"libc::c_char":   "u8",
	"libc::c_schar":  "i8",
	"libc::c_uchar":  "u8",
	"libc::c_short":  "i16",
	"libc::c_ushort": "u16",
	"libc::c_int":    "i32",
	"libc::c_uint":   "u32",
	"libc::c_long":   "isize",
	"libc::c_ulong":  "usize",
	"libc::c_float":  "f32",
	"libc::c_double": "f64",
}

// numericPrimitives are the scalar types that round-trip through a plain cast.
var numericPrimitives = map[string]bool{
	"u8": true, "i8": true, "u16": true, "i16": true,
	"u32": true, "i32": true, "u64": true, "i64": true,
	"usize": true, "isize": true, "f32": true, "f64": true,
}

// Types that keep their width across the boundary and need no cast at all.
var castIdentity = map[string]bool{
	"i32": true, "u32": true, "f32": true, "f64": true,
}

const cacheSize = 512

var traitsCache, _ = lru.New[string, *Traits](cacheSize)

// Parse analyzes a Rust type string. Results are cached; the returned value
// must be treated as read-only.
func Parse(raw string) *Traits {
	key := strings.TrimSpace(raw)
	if key == "" {
		return &Traits{}
	}
	if cached, ok := traitsCache.Get(key); ok {
		return cached
	}
	t := parse(key)
	traitsCache.Add(key, t)
	return t
}

func parse(raw string) *Traits {
	t := &Traits{Raw: raw, Normalized: normalize(raw)}
	s := t.Normalized

	switch {
	case strings.HasPrefix(s, "*mut"):
		inner := parse(strings.TrimSpace(strings.TrimPrefix(s, "*mut")))
		t.PointerDepth = inner.PointerDepth + 1
		t.PointerInner = inner
	case strings.HasPrefix(s, "*const"):
		inner := parse(strings.TrimSpace(strings.TrimPrefix(s, "*const")))
		t.PointerDepth = inner.PointerDepth + 1
		t.PointerInner = inner
	case strings.HasPrefix(s, "&mut "):
		t.IsReference = true
		t.IsMutReference = true
		t.ReferenceInner = parse(strings.TrimPrefix(s, "&mut "))
	case strings.HasPrefix(s, "&"):
		t.IsReference = true
		t.ReferenceInner = parse(strings.TrimPrefix(s, "&"))
	case strings.HasPrefix(s, "Option<") && strings.HasSuffix(s, ">"):
		t.IsOption = true
		t.OptionInner = parse(s[len("Option<") : len(s)-1])
	case strings.HasPrefix(s, "Box<") && strings.HasSuffix(s, ">"):
		t.IsBox = true
		t.BoxInner = parse(s[len("Box<") : len(s)-1])
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		t.IsSlice = true
		t.SliceElem = strings.TrimSpace(s[1 : len(s)-1])
	case s == "String":
		t.IsString = true
	case s == "str":
		t.IsStr = true
	default:
		if i := strings.LastIndex(s, "::"); i >= 0 {
			t.PathIdent = s[i+2:]
		} else {
			t.PathIdent = s
		}
	}
	return t
}

// normalize collapses whitespace so "* mut  u8" and "*mut u8" compare equal.
// A single space is kept after the pointer keyword.
func normalize(raw string) string {
	fields := strings.Fields(raw)
	s := strings.Join(fields, " ")
	s = strings.ReplaceAll(s, "* mut", "*mut")
	s = strings.ReplaceAll(s, "* const", "*const")
	s = strings.ReplaceAll(s, "< ", "<")
	s = strings.ReplaceAll(s, " <", "<")
	s = strings.ReplaceAll(s, " >", ">")
	return s
}

// IsOptionType reports whether the type is Option-wrapped.
func IsOptionType(ty string) bool {
	return Parse(ty).IsOption
}

// BoxInner returns the innermost type name if ty is Box<T> or Option<Box<T>>,
// or "" when the type is not boxed.
func BoxInner(ty string) string {
	t := Parse(ty)
	if t.IsOption {
		t = t.OptionInner
	}
	for t.IsReference {
		t = t.ReferenceInner
	}
	if !t.IsBox {
		return ""
	}
	inner := t.BoxInner
	if inner.PathIdent != "" {
		return inner.PathIdent
	}
	return inner.Normalized
}

// PointerElem infers the element type behind a raw pointer type, mapping
// libc scalar aliases to their primitive equivalents. Falls back to u8 when
// the element cannot be named, matching the original harness generator.
func PointerElem(ptrTy string) string {
	t := Parse(ptrTy)
	if t.PointerDepth == 0 || t.PointerInner == nil {
		return "u8"
	}
	inner := t.PointerInner.Normalized
	if mapped, ok := libcScalarToPrimitive[inner]; ok {
		return mapped
	}
	if inner == "" {
		return "u8"
	}
	return inner
}

// PointerBaseIdent returns the last path segment of the type behind one or
// more pointer layers, or "" for non-pointer types.
func PointerBaseIdent(ptrTy string) string {
	t := Parse(ptrTy)
	if t.PointerDepth == 0 {
		return ""
	}
	inner := t.PointerInner
	for inner != nil && inner.PointerDepth > 0 {
		inner = inner.PointerInner
	}
	if inner == nil {
		return ""
	}
	if inner.PathIdent != "" {
		return inner.PathIdent
	}
	return inner.Normalized
}

// ScalarCast returns the cast target for a scalar unidiomatic type, or ""
// when no cast is needed. libc integer/float aliases are cast to their
// primitive equivalents; the char family is left alone because the byte
// width already matches.
func ScalarCast(cTy string) string {
	n := Parse(cTy).Normalized
	switch n {
	case "libc::c_char", "libc::c_schar", "libc::c_uchar":
		return ""
	}
	if mapped, ok := libcScalarToPrimitive[n]; ok {
		return mapped
	}
	if castIdentity[n] {
		return n
	}
	return ""
}

// IsNumericPrimitive reports whether ty is one of the plain numeric scalars.
func IsNumericPrimitive(ty string) bool {
	return numericPrimitives[Parse(ty).Normalized]
}

// StringKind classifies an idiomatic type for C-string conversion purposes.
// One of "owned", "borrowed", "option_owned", "option_borrowed" or "other".
func StringKind(ty string) string {
	return stringKind(Parse(ty))
}

func stringKind(t *Traits) string {
	if t == nil {
		return "other"
	}
	if t.IsOption {
		switch stringKind(t.OptionInner) {
		case "owned":
			return "option_owned"
		case "borrowed":
			return "option_borrowed"
		}
		return "other"
	}
	if t.IsString {
		return "owned"
	}
	if t.IsStr {
		return "borrowed"
	}
	if t.IsReference {
		return stringKind(t.ReferenceInner)
	}
	return "other"
}

// SliceInfo classifies an idiomatic type as a slice view. Returns whether it
// is a slice, whether it is Option-wrapped, the element type and mutability.
func SliceInfo(ty string) (isSlice, optional bool, elem string, mutable bool) {
	return sliceInfo(Parse(ty))
}

func sliceInfo(t *Traits) (bool, bool, string, bool) {
	if t == nil {
		return false, false, "", false
	}
	if t.IsOption {
		if ok, _, elem, mut := sliceInfo(t.OptionInner); ok {
			return true, true, elem, mut
		}
	}
	if t.IsSlice {
		return true, false, t.SliceElem, false
	}
	if t.IsReference {
		ok, opt, elem, mut := sliceInfo(t.ReferenceInner)
		if ok && t.IsMutReference {
			mut = true
		}
		return ok, opt, elem, mut
	}
	return false, false, "", false
}
