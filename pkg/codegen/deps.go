package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crossffi/bridgen/pkg/rusttype"
	"github.com/crossffi/bridgen/pkg/spec"
)

// UnresolvedDependencyError reports a ref field pointing at a struct no spec
// covers. The engine surfaces it as a diagnostic instead of emitting a
// converter that cannot link.
type UnresolvedDependencyError struct {
	Struct  string
	Missing string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("struct %q references %q, which has no mapping spec", e.Struct, e.Missing)
}

// CycleError reports a dependency cycle between distinct structs. A struct
// referencing itself is not a cycle: recursive lists convert through their
// own pair.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic struct dependency: %s", strings.Join(e.Members, " -> "))
}

// StructDeps returns the names of structs a spec's ref fields point at,
// excluding itself. Names are deduplicated and sorted.
func StructDeps(s *spec.StructSpec) []string {
	seen := make(map[string]bool)
	collect := func(f *spec.Field) {
		p := f.U.Shape.Ptr
		if p == nil || p.Kind != spec.KindRef {
			return
		}
		base := rusttype.PointerBaseIdent(f.U.Type)
		if base == "" || rusttype.IsNumericPrimitive(base) ||
			rusttype.ScalarCast(base) != "" || strings.HasPrefix(base, "c_") {
			return
		}
		target := strings.TrimPrefix(base, "C")
		if target != s.StructName {
			seen[target] = true
		}
	}
	for i := range s.Fields {
		collect(&s.Fields[i])
	}
	if s.Enum != nil {
		for vi := range s.Enum.Variants {
			for i := range s.Enum.Variants[vi].Payload {
				collect(&s.Enum.Variants[vi].Payload[i])
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Order computes a dependency-respecting assembly order over a set of struct
// specs: referenced structs come before their referrers, so each pair can
// delegate to already-registered converters. Returns UnresolvedDependencyError
// for an edge into the void and CycleError for a cycle between distinct
// structs.
func Order(specs map[string]*spec.StructSpec) ([]string, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(specs))
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		path = append(path, name)
		for _, dep := range StructDeps(specs[name]) {
			if _, ok := specs[dep]; !ok {
				return &UnresolvedDependencyError{Struct: name, Missing: dep}
			}
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				// Trim the path back to where the cycle entered.
				start := 0
				for i, m := range path {
					if m == dep {
						start = i
						break
					}
				}
				members := append(append([]string{}, path[start:]...), dep)
				return &CycleError{Members: members}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if color[name] == white {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
