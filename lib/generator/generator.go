// Package generator writes forgewire component definitions from annotated
// Go source, so components never need runtime reflection.
//
// A component is a struct type marked with a //wire:component directive.
// State fields carry a wire tag, validation rules a rules tag, and methods
// are exposed through //wire:action, //wire:computed, //wire:listen and
// //wire:mount directives:
//
//	//wire:component counter
//	type Counter struct {
//		Count int    `wire:"count" rules:"min:0"`
//		Hits  int    `wire:"hits,shared=hits"`
//		db    *sql.DB
//	}
//
//	//wire:action param=step:number?
//	func (c *Counter) Increment(ctx context.Context, args forgewire.Args) forgewire.Result
//
// The generator writes <file>_wire.go next to each annotated source file.
package generator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"
)

// GeneratedSuffix is appended to the source file name of generated files.
const GeneratedSuffix = "_wire.go"

// Options configures the generator.
type Options struct {
	DryRun bool
	// Out receives progress lines. Default: os.Stdout.
	Out io.Writer
}

// Generator generates forgewire definitions.
type Generator struct {
	opts Options
	fset *token.FileSet
}

// New creates a new generator.
func New(opts Options) *Generator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Generator{
		opts: opts,
		fset: token.NewFileSet(),
	}
}

// Generate generates code for the given package patterns.
func (g *Generator) Generate(patterns ...string) error {
	packages, err := g.findPackages(patterns)
	if err != nil {
		return err
	}

	for _, pkg := range packages {
		if err := g.generatePackage(pkg); err != nil {
			return fmt.Errorf("package %s: %w", pkg, err)
		}
	}

	return nil
}

// Clean removes generated files for the given package patterns.
func (g *Generator) Clean(patterns ...string) error {
	packages, err := g.findPackages(patterns)
	if err != nil {
		return err
	}

	for _, pkg := range packages {
		if err := g.cleanPackage(pkg); err != nil {
			return fmt.Errorf("package %s: %w", pkg, err)
		}
	}

	return nil
}

// findPackages resolves package patterns to directory paths.
func (g *Generator) findPackages(patterns []string) ([]string, error) {
	var packages []string

	for _, pattern := range patterns {
		root, recursive := strings.CutSuffix(pattern, "/...")
		if !recursive {
			packages = append(packages, pattern)
			continue
		}
		if root == "" {
			root = "."
		}

		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "vendor" || base == "testdata") {
				return filepath.SkipDir
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				return nil
			}
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") && !strings.HasSuffix(entry.Name(), "_test.go") {
					packages = append(packages, path)
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return packages, nil
}

// generatePackage generates code for a single package.
func (g *Generator) generatePackage(pkgPath string) error {
	entries, err := os.ReadDir(pkgPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") ||
			strings.HasSuffix(name, "_test.go") || strings.HasSuffix(name, GeneratedSuffix) {
			continue
		}
		path := filepath.Join(pkgPath, name)
		file, err := parser.ParseFile(g.fset, path, nil, parser.ParseComments)
		if err != nil {
			return err
		}
		components, err := g.FindComponents(file)
		if err != nil {
			return err
		}
		if len(components) == 0 {
			continue
		}
		if err := g.writeFile(path, file.Name.Name, components); err != nil {
			return err
		}
	}

	return nil
}

// cleanPackage removes generated files from a package.
func (g *Generator) cleanPackage(pkgPath string) error {
	entries, err := os.ReadDir(pkgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), GeneratedSuffix) {
			continue
		}
		path := filepath.Join(pkgPath, entry.Name())
		fmt.Fprintf(g.opts.Out, "removing %s\n", path)
		if !g.opts.DryRun {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}

	return nil
}

// ComponentInfo holds information about a discovered component.
type ComponentInfo struct {
	TypeName  string // e.g. "Counter"
	Name      string // component name from //wire:component
	Template  string
	Sensitive bool
	Mount     string // mount method name, if any
	Fields    []FieldInfo
	Actions   []ActionInfo
	Computed  []ComputedInfo
}

// FieldInfo is a tagged state field.
type FieldInfo struct {
	GoName string
	Name   string
	Type   string
	Method string // Builder method: String, Int, Float, Bool, Strings, List
	Shared string
	Rules  string
}

// ActionInfo is a method exposed as an action.
type ActionInfo struct {
	Name       string
	Method     string
	FormSubmit bool
	Params     []ParamInfo
	Listen     []string
}

// ParamInfo is a declared action parameter.
type ParamInfo struct {
	Name     string
	Kind     string // forgewire Kind constant, e.g. "KindNumber"
	Optional bool
}

// ComputedInfo is a method exposed as a computed value.
type ComputedInfo struct {
	Name   string
	Method string
}

var builderMethods = map[string]string{
	"string":   "String",
	"int":      "Int",
	"float64":  "Float",
	"bool":     "Bool",
	"[]string": "Strings",
	"[]any":    "List",
}

var paramKinds = map[string]string{
	"string": "KindString",
	"number": "KindNumber",
	"bool":   "KindBool",
	"array":  "KindArray",
}

// FindComponents returns the components declared in file, in source order.
func (g *Generator) FindComponents(file *ast.File) ([]*ComponentInfo, error) {
	var components []*ComponentInfo
	byType := map[string]*ComponentInfo{}

	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			doc := typeSpec.Doc
			if doc == nil && len(genDecl.Specs) == 1 {
				doc = genDecl.Doc
			}
			args, found := directive(doc, "component")
			if !found {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				return nil, g.errorf(typeSpec.Pos(), "//wire:component on non-struct type %s", typeSpec.Name.Name)
			}
			comp, err := g.parseComponent(typeSpec.Name.Name, args, typeSpec.Pos())
			if err != nil {
				return nil, err
			}
			if comp.Fields, err = g.parseFields(structType); err != nil {
				return nil, err
			}
			components = append(components, comp)
			byType[comp.TypeName] = comp
		}
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) != 1 {
			continue
		}
		comp := byType[receiverType(fn.Recv.List[0].Type)]
		if comp == nil {
			continue
		}
		if err := g.parseMethod(comp, fn); err != nil {
			return nil, err
		}
	}

	return components, nil
}

func (g *Generator) parseComponent(typeName string, args []string, pos token.Pos) (*ComponentInfo, error) {
	if len(args) == 0 {
		return nil, g.errorf(pos, "//wire:component on %s needs a name", typeName)
	}
	comp := &ComponentInfo{TypeName: typeName, Name: args[0]}
	for _, arg := range args[1:] {
		key, val, _ := strings.Cut(arg, "=")
		switch key {
		case "template":
			comp.Template = val
		case "sensitive":
			comp.Sensitive = true
		default:
			return nil, g.errorf(pos, "//wire:component %s: unknown option %q", comp.Name, arg)
		}
	}
	return comp, nil
}

// parseFields collects fields carrying a wire tag.
func (g *Generator) parseFields(st *ast.StructType) ([]FieldInfo, error) {
	var fields []FieldInfo
	for _, field := range st.Fields.List {
		if field.Tag == nil || len(field.Names) == 0 {
			continue
		}
		tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		wire, ok := tag.Lookup("wire")
		if !ok || wire == "-" {
			continue
		}
		typ := typeToString(field.Type)
		method, ok := builderMethods[typ]
		if !ok {
			return nil, g.errorf(field.Pos(), "field %s: unsupported state type %s", field.Names[0].Name, typ)
		}
		if len(field.Names) > 1 {
			return nil, g.errorf(field.Pos(), "tagged field list %s must declare one field", field.Names[0].Name)
		}

		parts := strings.Split(wire, ",")
		f := FieldInfo{GoName: field.Names[0].Name, Name: parts[0], Type: typ, Method: method}
		if f.Name == "" {
			f.Name = lowerFirst(f.GoName)
		}
		for _, opt := range parts[1:] {
			key, val, _ := strings.Cut(opt, "=")
			switch key {
			case "shared":
				if val == "" {
					return nil, g.errorf(field.Pos(), "field %s: shared needs a key", f.GoName)
				}
				f.Shared = val
			default:
				return nil, g.errorf(field.Pos(), "field %s: unknown wire option %q", f.GoName, opt)
			}
		}
		f.Rules = tag.Get("rules")
		fields = append(fields, f)
	}
	return fields, nil
}

func (g *Generator) parseMethod(comp *ComponentInfo, fn *ast.FuncDecl) error {
	params := fn.Type.Params.NumFields()
	results := 0
	if fn.Type.Results != nil {
		results = fn.Type.Results.NumFields()
	}
	method := fn.Name.Name

	if _, ok := directive(fn.Doc, "mount"); ok {
		if params != 2 || results != 1 {
			return g.errorf(fn.Pos(), "//wire:mount %s.%s: want func(ctx, props) error", comp.TypeName, method)
		}
		comp.Mount = method
	}

	if args, ok := directive(fn.Doc, "computed"); ok {
		if params != 1 || results != 2 {
			return g.errorf(fn.Pos(), "//wire:computed %s.%s: want func(ctx) (any, error)", comp.TypeName, method)
		}
		c := ComputedInfo{Name: lowerFirst(method), Method: method}
		if len(args) > 0 {
			c.Name = args[0]
		}
		comp.Computed = append(comp.Computed, c)
	}

	args, isAction := directive(fn.Doc, "action")
	listens := directives(fn.Doc, "listen")
	if !isAction {
		if len(listens) > 0 {
			return g.errorf(fn.Pos(), "//wire:listen on %s.%s needs //wire:action", comp.TypeName, method)
		}
		return nil
	}
	if params != 2 || results != 1 {
		return g.errorf(fn.Pos(), "//wire:action %s.%s: want func(ctx, args) forgewire.Result", comp.TypeName, method)
	}
	a := ActionInfo{Name: lowerFirst(method), Method: method}
	for _, arg := range args {
		key, val, hasVal := strings.Cut(arg, "=")
		switch {
		case arg == "form":
			a.FormSubmit = true
		case key == "name" && hasVal:
			a.Name = val
		case key == "param" && hasVal:
			p, err := parseParam(val)
			if err != nil {
				return g.errorf(fn.Pos(), "//wire:action %s.%s: %v", comp.TypeName, method, err)
			}
			a.Params = append(a.Params, p)
		default:
			return g.errorf(fn.Pos(), "//wire:action %s.%s: unknown option %q", comp.TypeName, method, arg)
		}
	}
	for _, l := range listens {
		if len(l) != 1 {
			return g.errorf(fn.Pos(), "//wire:listen on %s.%s takes one event", comp.TypeName, method)
		}
		a.Listen = append(a.Listen, l[0])
	}
	comp.Actions = append(comp.Actions, a)
	return nil
}

// parseParam parses name:kind, with a trailing ? marking it optional.
func parseParam(s string) (ParamInfo, error) {
	name, kind, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return ParamInfo{}, fmt.Errorf("param %q: want name:kind", s)
	}
	p := ParamInfo{Name: name}
	kind, p.Optional = strings.CutSuffix(kind, "?")
	if p.Kind, ok = paramKinds[kind]; !ok {
		return ParamInfo{}, fmt.Errorf("param %q: unknown kind %q", s, kind)
	}
	return p, nil
}

func (g *Generator) errorf(pos token.Pos, format string, args ...any) error {
	return fmt.Errorf("%s: %s", g.fset.Position(pos), fmt.Sprintf(format, args...))
}

// directive returns the arguments of the first //wire:<name> line in doc.
func directive(doc *ast.CommentGroup, name string) ([]string, bool) {
	all := directives(doc, name)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

func directives(doc *ast.CommentGroup, name string) [][]string {
	if doc == nil {
		return nil
	}
	var out [][]string
	prefix := "//wire:" + name
	for _, c := range doc.List {
		rest, ok := strings.CutPrefix(c.Text, prefix)
		if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		out = append(out, strings.Fields(rest))
	}
	return out
}

func receiverType(expr ast.Expr) string {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

// typeToString converts an AST type to a string representation.
func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return "[...]" + typeToString(t.Elt)
	case *ast.MapType:
		return "map[" + typeToString(t.Key) + "]" + typeToString(t.Value)
	case *ast.InterfaceType:
		if t.Methods == nil || len(t.Methods.List) == 0 {
			return "any"
		}
		return "interface{...}"
	case *ast.IndexExpr:
		return typeToString(t.X) + "[" + typeToString(t.Index) + "]"
	default:
		return fmt.Sprintf("%T", expr)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
