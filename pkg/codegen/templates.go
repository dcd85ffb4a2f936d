package codegen

import (
	"strings"
	"text/template"
)

// Rendered converter layouts. Line slices arrive pre-indented from the field
// dispatcher so the templates only deal in placement, not formatting.

type structPairData struct {
	ForwardName  string
	BackwardName string
	CType        string
	IType        string
	Asserts      []string
	InitLines    []string
	BackLines    []string
	CInit        []string
}

var structPairTmpl = template.Must(template.New("structPair").Parse(
	`#[allow(non_snake_case)]
pub unsafe fn {{.ForwardName}}(ptr: *mut {{.CType}}) -> &'static mut {{.IType}} {
    assert!(!ptr.is_null());
    let c_struct = &mut *ptr;
{{- range .Asserts}}
{{.}}
{{- end}}
    let value = {{.IType}} {
{{- range .InitLines}}
{{.}}
{{- end}}
    };
    Box::leak(Box::new(value))
}

#[allow(non_snake_case)]
pub unsafe fn {{.BackwardName}}(idiom_struct: &mut {{.IType}}) -> *mut {{.CType}} {
{{- range .BackLines}}
{{.}}
{{- end}}
    let c_new = {{.CType}} {
{{- range .CInit}}
{{.}}
{{- end}}
    };
    Box::into_raw(Box::new(c_new))
}
`))

type enumPairData struct {
	ForwardName  string
	BackwardName string
	CType        string
	IType        string
	TagField     string
	ForwardArms  []string
	BackwardArms []string
}

var enumPairTmpl = template.Must(template.New("enumPair").Parse(
	`#[allow(non_snake_case)]
pub unsafe fn {{.ForwardName}}(ptr: *mut {{.CType}}) -> &'static mut {{.IType}} {
    assert!(!ptr.is_null());
    let c_struct = &mut *ptr;
    let value = match c_struct.{{.TagField}} {
{{- range .ForwardArms}}
{{.}}
{{- end}}
        other => panic!("unhandled {{.CType}} tag value: {:?}", other),
    };
    Box::leak(Box::new(value))
}

#[allow(non_snake_case)]
pub unsafe fn {{.BackwardName}}(idiom_struct: &mut {{.IType}}) -> *mut {{.CType}} {
    let c_new = match idiom_struct {
{{- range .BackwardArms}}
{{.}}
{{- end}}
    };
    Box::into_raw(Box::new(c_new))
}
`))

type skeletonData struct {
	ForwardName  string
	BackwardName string
	CType        string
	IType        string
	Reasons      []string
	Notes        []string
}

var skeletonTmpl = template.Must(template.New("skeleton").Parse(
	`#[allow(non_snake_case, unused_variables)]
pub unsafe fn {{.ForwardName}}(ptr: *mut {{.CType}}) -> &'static mut {{.IType}} {
{{- range .Reasons}}
    // TODO: {{.}}
{{- end}}
{{- range .Notes}}
    // note: {{.}}
{{- end}}
    unimplemented!("{{.ForwardName}}")
}

#[allow(non_snake_case, unused_variables)]
pub unsafe fn {{.BackwardName}}(idiom_struct: &mut {{.IType}}) -> *mut {{.CType}} {
    unimplemented!("{{.BackwardName}}")
}
`))

type fnHarnessData struct {
	Name      string
	Params    string
	RetArrow  string
	PreLines  []string
	CallLine  string
	PostLines []string
	RetLines  []string
}

var fnHarnessTmpl = template.Must(template.New("fnHarness").Parse(
	`#[allow(non_snake_case, unused_mut, unused_variables)]
pub unsafe fn {{.Name}}({{.Params}}){{.RetArrow}} {
{{- range .PreLines}}
{{.}}
{{- end}}
{{.CallLine}}
{{- range .PostLines}}
{{.}}
{{- end}}
{{- range .RetLines}}
{{.}}
{{- end}}
}
`))

func render(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		// Templates are static and data is plain slices/strings; failure
		// here is a programming error.
		panic(err)
	}
	return b.String()
}
