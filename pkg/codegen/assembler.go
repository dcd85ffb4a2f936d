package codegen

import (
	"fmt"
	"strings"

	"github.com/crossffi/bridgen/pkg/spec"
)

// ConverterPair is the assembled Rust source for one struct: the forward
// converter (pointer graph in, owned value out, leaked to 'static) and the
// backward converter (owned value in, freshly allocated pointer graph out).
type ConverterPair struct {
	StructName    string
	IdiomaticType string
	CType         string
	Source        string

	// Unresolved lists the fields the rule table could not handle. A
	// non-empty list means Source contains TODO markers and the pair is
	// a candidate for escalation, not registration.
	Unresolved []Unresolved

	// Skeleton is set when assembly could not produce converter bodies
	// at all and emitted unimplemented stubs instead.
	Skeleton bool
}

// AssembleStruct turns a validated struct spec into a converter pair.
// Invalid specs are a hard stop. Field-level gaps degrade to TODO markers
// carried in Unresolved rather than failing the whole struct, so a
// partially specified struct still yields a harness to iterate on.
func AssembleStruct(s *spec.StructSpec, res Resolver) (*ConverterPair, error) {
	if v := spec.ValidateStruct(s, s.StructName); !v.Valid() {
		return nil, fmt.Errorf("struct %q: %s", s.StructName, v.Error())
	}
	if res == nil {
		res = NoResolver
	}
	if s.Enum != nil {
		return assembleEnum(s)
	}

	iType := s.IdiomaticType()
	cType := CTypeName(s.StructName)

	ctx := &emitCtx{
		// A struct may reference itself (intrusive lists); recursion
		// through its own pair is always resolvable.
		resolver: resolverFunc(func(name string) bool {
			return name == s.StructName || res.Has(name)
		}),
		derivedLen: make(map[string]bool),
		lenTargets: make(map[string]bool),
		uTypeOf:    s.UFieldType,
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.U.Shape.Scalar && strings.HasSuffix(f.I.Name, ".len") {
			ctx.derivedLen[f.U.Name] = true
		}
		if p := f.U.Shape.Ptr; p != nil && p.LenFrom != "" {
			ctx.lenTargets[p.LenFrom] = true
		}
	}

	data := structPairData{
		ForwardName:  ForwardName(s.StructName, iType),
		BackwardName: BackwardName(s.StructName, iType),
		CType:        cType,
		IType:        iType,
	}
	pair := &ConverterPair{
		StructName:    s.StructName,
		IdiomaticType: iType,
		CType:         cType,
	}

	for i := range s.Fields {
		f := &s.Fields[i]
		u := emitStructField(f, ctx)
		if u.unsupported {
			pair.Unresolved = append(pair.Unresolved, Unresolved{
				Spec:   s.StructName,
				Field:  f.U.Name,
				Reason: u.reason,
				Note:   f.LLMNote,
			})
		}
		data.Asserts = append(data.Asserts, u.asserts...)
		data.InitLines = append(data.InitLines, u.initLines...)
		data.BackLines = append(data.BackLines, u.backLines...)
		data.CInit = append(data.CInit, u.cInit...)
	}

	// Two slices sharing one length source would emit the same length
	// temporary and literal line twice.
	data.BackLines = dedupeLines(data.BackLines)
	data.CInit = dedupeLines(data.CInit)

	pair.Source = render(structPairTmpl, data)
	return pair, nil
}

// SkeletonPair emits unimplemented converter stubs for a struct that could
// not be assembled, keeping the harness compilable in shape while the gaps
// are escalated.
func SkeletonPair(s *spec.StructSpec, reasons []string) *ConverterPair {
	iType := s.IdiomaticType()
	data := skeletonData{
		ForwardName:  ForwardName(s.StructName, iType),
		BackwardName: BackwardName(s.StructName, iType),
		CType:        CTypeName(s.StructName),
		IType:        iType,
		Reasons:      reasons,
	}
	var unresolved []Unresolved
	for _, r := range reasons {
		unresolved = append(unresolved, Unresolved{Spec: s.StructName, Reason: r})
	}
	for i := range s.Fields {
		if n := s.Fields[i].LLMNote; n != "" {
			data.Notes = append(data.Notes,
				fmt.Sprintf("%s: %s", s.Fields[i].U.Name, n))
		}
	}
	return &ConverterPair{
		StructName:    s.StructName,
		IdiomaticType: iType,
		CType:         data.CType,
		Source:        render(skeletonTmpl, data),
		Unresolved:    unresolved,
		Skeleton:      true,
	}
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	out := lines[:0]
	for _, l := range lines {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
