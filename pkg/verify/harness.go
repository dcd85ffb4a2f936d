package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/crossffi/bridgen/pkg/spec"
)

// cargoManifest is the manifest for a temporary harness crate. libc is the
// only dependency the generated converters rely on.
const cargoManifest = `[package]
name = %q
version = "0.1.0"
edition = "2021"

[dependencies]
libc = "0.2"
`

type harnessData struct {
	StructName   string
	CType        string
	IType        string
	ForwardName  string
	BackwardName string
	TypeDefs     string
	Converters   string
	FillLines    []string
	CompareLines []string
}

var libRsTmpl = template.Must(template.New("librs").Parse(
	`#![allow(dead_code, unused_imports, unused_unsafe, unused_mut, non_snake_case, non_camel_case_types)]

{{.TypeDefs}}

{{.Converters}}

#[cfg(test)]
mod tests {
    use super::*;

    #[test]
    fn roundtrip_{{.StructName}}() {
        unsafe {
            let mut c0: {{.CType}} = core::mem::zeroed();
{{- range .FillLines}}
            {{.}}
{{- end}}

            let mut expected_c: {{.CType}} = core::mem::zeroed();
            core::ptr::copy_nonoverlapping(
                &c0 as *const {{.CType}},
                &mut expected_c as *mut {{.CType}},
                1,
            );
            let expected_r: &'static mut {{.IType}} =
                {{.ForwardName}}(&mut expected_c as *mut {{.CType}});

            let p0 = &mut c0 as *mut {{.CType}};
            let r: &'static mut {{.IType}} = {{.ForwardName}}(p0);
            let p1: *mut {{.CType}} = {{.BackwardName}}(r);
            assert!(!p1.is_null(), "backward converter returned null");
            assert_ne!(p1 as usize, p0 as usize, "backward converter returned the input pointer");

            let actual_r: &'static mut {{.IType}} = {{.ForwardName}}(p1);
{{- range .CompareLines}}
            {{.}}
{{- end}}
        }
    }
}
`))

// BuildCrate materializes a harness crate at dir: Cargo.toml plus a lib.rs
// combining the type definitions, the converters under test and one
// roundtrip test.
func BuildCrate(dir, crateName string, data *harnessData) error {
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return fmt.Errorf("verify: create crate dir: %w", err)
	}
	manifest := fmt.Sprintf(cargoManifest, crateName)
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("verify: write manifest: %w", err)
	}

	var b strings.Builder
	if err := libRsTmpl.Execute(&b, data); err != nil {
		return fmt.Errorf("verify: render lib.rs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("verify: write lib.rs: %w", err)
	}
	return nil
}

// CompareLines renders the per-field assertions for the hinted fields.
// Fields without a hint are excluded; "skip" is explicit exclusion; derived
// ".len" paths compare element counts only. Enum mappings compare the
// discriminant first, then the hinted payload fields of whichever variant
// is active.
func CompareLines(s *spec.StructSpec) []string {
	if s.Enum != nil {
		return enumCompareLines(s.Enum)
	}

	var lines []string
	for i := range s.Fields {
		f := &s.Fields[i]
		switch f.Compare {
		case spec.CompareByValue, spec.CompareBySlice:
		default:
			continue
		}
		if strings.HasSuffix(f.I.Name, ".len") {
			base := strings.TrimSuffix(f.I.Name, ".len")
			lines = append(lines, fmt.Sprintf(
				`assert_eq!((expected_r.%s).len(), (actual_r.%s).len(), "field %s mismatch");`,
				base, base, f.I.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf(
			`assert_eq!(&(expected_r.%s), &(actual_r.%s), "field %s mismatch");`,
			f.I.Name, f.I.Name, f.I.Name))
	}
	return lines
}

// enumCompareLines checks the discriminant first, then destructures the
// active variant and compares its hinted payload bindings. Variants without
// hinted payloads fall through to the discriminant check alone.
func enumCompareLines(e *spec.EnumMapping) []string {
	lines := []string{
		`assert_eq!(core::mem::discriminant(&*expected_r), ` +
			`core::mem::discriminant(&*actual_r), "field tag mismatch");`,
	}

	var arms []string
	for i := range e.Variants {
		arms = append(arms, variantCompareArm(e.IType, &e.Variants[i])...)
	}
	if len(arms) == 0 {
		return lines
	}

	lines = append(lines, `match (&*expected_r, &*actual_r) {`)
	lines = append(lines, arms...)
	lines = append(lines, `    _ => {}`, `}`)
	return lines
}

func variantCompareArm(iType string, v *spec.Variant) []string {
	payload := make([]*spec.Field, len(v.Payload))
	for i := range v.Payload {
		payload[i] = &v.Payload[i]
	}
	sort.SliceStable(payload, func(a, b int) bool {
		na, errA := strconv.Atoi(payload[a].I.Name)
		nb, errB := strconv.Atoi(payload[b].I.Name)
		if errA != nil || errB != nil {
			return false
		}
		return na < nb
	})

	tuple := len(payload) > 0
	hinted := 0
	for _, f := range payload {
		if _, err := strconv.Atoi(f.I.Name); err != nil {
			tuple = false
		}
		if f.Compare == spec.CompareByValue || f.Compare == spec.CompareBySlice {
			hinted++
		}
	}
	if hinted == 0 {
		return nil
	}

	var ePat, aPat, asserts []string
	for i, f := range payload {
		switch f.Compare {
		case spec.CompareByValue, spec.CompareBySlice:
		default:
			if tuple {
				ePat = append(ePat, "_")
				aPat = append(aPat, "_")
			}
			continue
		}
		// Derived lengths have no idiomatic binding of their own.
		if strings.Contains(f.I.Name, ".") {
			if tuple {
				ePat = append(ePat, "_")
				aPat = append(aPat, "_")
			}
			continue
		}
		var eName, aName string
		if tuple {
			eName = fmt.Sprintf("e_%d", i)
			aName = fmt.Sprintf("a_%d", i)
			ePat = append(ePat, eName)
			aPat = append(aPat, aName)
		} else {
			eName = "e_" + f.I.Name
			aName = "a_" + f.I.Name
			ePat = append(ePat, fmt.Sprintf("%s: %s", f.I.Name, eName))
			aPat = append(aPat, fmt.Sprintf("%s: %s", f.I.Name, aName))
		}
		asserts = append(asserts, fmt.Sprintf(
			`        assert_eq!(%s, %s, "field %s mismatch");`,
			eName, aName, f.U.Name))
	}
	if len(asserts) == 0 {
		return nil
	}

	var pattern string
	if tuple {
		pattern = fmt.Sprintf("(%s::%s(%s), %s::%s(%s))",
			iType, v.Name, strings.Join(ePat, ", "),
			iType, v.Name, strings.Join(aPat, ", "))
	} else {
		pattern = fmt.Sprintf("(%s::%s { %s, .. }, %s::%s { %s, .. })",
			iType, v.Name, strings.Join(ePat, ", "),
			iType, v.Name, strings.Join(aPat, ", "))
	}

	lines := []string{fmt.Sprintf("    %s => {", pattern)}
	lines = append(lines, asserts...)
	lines = append(lines, "    }")
	return lines
}
