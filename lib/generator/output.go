package generator

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// writeFile writes the <file>_wire.go file for the components of one source
// file.
func (g *Generator) writeFile(sourcePath, pkgName string, components []*ComponentInfo) error {
	baseName := strings.TrimSuffix(filepath.Base(sourcePath), ".go")
	outputFile := filepath.Join(filepath.Dir(sourcePath), baseName+GeneratedSuffix)

	fmt.Fprintf(g.opts.Out, "generating %s\n", outputFile)

	if g.opts.DryRun {
		return nil
	}

	code, err := Render(pkgName, components)
	if err != nil {
		return err
	}
	return os.WriteFile(outputFile, code, 0644)
}

// Render returns the formatted source defining components.
func Render(pkgName string, components []*ComponentInfo) ([]byte, error) {
	tmpl, err := template.New("wire").Funcs(template.FuncMap{
		"quote":      strconv.Quote,
		"receiver":   receiverName,
		"fieldOpts":  fieldOptions,
		"actionOpts": actionOptions,
	}).Parse(wireTemplate)
	if err != nil {
		return nil, err
	}

	data := struct {
		Package    string
		Components []*ComponentInfo
	}{
		Package:    pkgName,
		Components: components,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format source: %w\n%s", err, buf.Bytes())
	}
	return formatted, nil
}

// receiverName returns the short variable name used in field accessors.
func receiverName(typeName string) string {
	return strings.ToLower(typeName[:1])
}

func fieldOptions(f FieldInfo) string {
	var opts []string
	if f.Shared != "" {
		opts = append(opts, "forgewire.Shared("+strconv.Quote(f.Shared)+")")
	}
	if f.Rules != "" {
		opts = append(opts, "forgewire.Rules("+strconv.Quote(f.Rules)+")")
	}
	if len(opts) == 0 {
		return ""
	}
	return ", " + strings.Join(opts, ", ")
}

func actionOptions(a ActionInfo) string {
	var opts []string
	for _, p := range a.Params {
		fn := "Param"
		if p.Optional {
			fn = "OptionalParam"
		}
		opts = append(opts, fmt.Sprintf("forgewire.%s(%s, forgewire.%s)", fn, strconv.Quote(p.Name), p.Kind))
	}
	if a.FormSubmit {
		opts = append(opts, "forgewire.FormSubmit()")
	}
	if len(opts) == 0 {
		return ""
	}
	return ", " + strings.Join(opts, ", ")
}

const wireTemplate = `// Code generated by forgewire generate. DO NOT EDIT.

package {{.Package}}

import "github.com/pthm/forgewire"
{{range .Components}}{{$c := .}}{{$r := receiver .TypeName}}
// {{.TypeName}}Def is the forgewire definition of {{.TypeName}}.
var {{.TypeName}}Def = forgewire.Define({{quote .Name}}, func(b *forgewire.Builder[*{{.TypeName}}]) {
{{- if .Template}}
	b.Template({{quote .Template}})
{{- end}}
{{- if .Sensitive}}
	b.Sensitive()
{{- end}}
{{- if .Mount}}
	b.Mount((*{{.TypeName}}).{{.Mount}})
{{- end}}
{{- range .Fields}}
	b.{{.Method}}({{quote .Name}}, func({{$r}} *{{$c.TypeName}}) *{{.Type}} { return &{{$r}}.{{.GoName}} }{{fieldOpts .}})
{{- end}}
{{- range .Actions}}
	b.Action({{quote .Name}}, (*{{$c.TypeName}}).{{.Method}}{{actionOpts .}})
{{- end}}
{{- range .Computed}}
	b.Computed({{quote .Name}}, (*{{$c.TypeName}}).{{.Method}})
{{- end}}
{{- range $a := .Actions}}{{range .Listen}}
	b.Listen({{quote .}}, {{quote $a.Name}})
{{- end}}{{end}}
})
{{end}}`
