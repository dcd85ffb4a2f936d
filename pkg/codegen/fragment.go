// Package codegen turns validated mapping specs into Rust conversion code:
// per-field forward/backward fragments, whole-struct converter pairs,
// tagged-union flattening and function harnesses. Anything the rule table
// cannot express degrades to a marked TODO skeleton instead of plausible but
// wrong unsafe code.
package codegen

// Accessor bindings used inside generated converters.
const (
	cStructBind     = "c_struct"
	idiomStructBind = "idiom_struct"
)

// Direction of a conversion fragment.
type Direction int

const (
	// Forward converts unidiomatic to idiomatic.
	Forward Direction = iota
	// Backward converts idiomatic to unidiomatic.
	Backward
)

// Unresolved records a field the rule table could not handle. It is carried
// on the assembled output and queued for escalation; the generated code
// contains a matching TODO marker at the same location.
type Unresolved struct {
	Spec   string `json:"spec"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Note   string `json:"llm_note,omitempty"`
}

// fieldUnit is the emission result for one field: the forward initializer,
// the backward temporaries, the C struct literal lines and any non-null
// asserts. Empty slices mean the field contributes nothing in that position
// (derived-length fields, unsupported fields).
type fieldUnit struct {
	initLines []string // inside the idiomatic struct literal
	backLines []string // before the C struct literal
	cInit     []string // inside the C struct literal
	asserts   []string // non-null asserts before any dereference

	unsupported bool
	reason      string
}

// Resolver reports whether a converter pair for the named struct already
// exists or is resolvable. Cross-struct ref fields delegate through it.
type Resolver interface {
	Has(structName string) bool
}

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(string) bool

func (f resolverFunc) Has(name string) bool { return f(name) }

// NoResolver resolves nothing; useful for single-struct assembly in tests.
var NoResolver Resolver = resolverFunc(func(string) bool { return false })
