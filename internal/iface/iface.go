// Package iface describes the factory's caller-facing interface. The
// description is declared in CUE, compiled into an ir.ServiceSpec and
// rendered as Candid service text.
package iface

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/mintfactory/internal/compiler"
	"github.com/roach88/mintfactory/internal/ir"
)

//go:embed service.cue
var serviceSource []byte

var (
	describeOnce sync.Once
	described    *ir.ServiceSpec
	describeErr  error
)

// Describe returns the compiled interface. The embedded declaration is
// compiled once; callers must not modify the result.
func Describe() (*ir.ServiceSpec, error) {
	describeOnce.Do(func() {
		described, describeErr = compiler.CompileServiceSource(serviceSource, "service.cue")
	})
	return described, describeErr
}

// Text returns the Candid rendering of the interface.
func Text() (string, error) {
	spec, err := Describe()
	if err != nil {
		return "", fmt.Errorf("describe interface: %w", err)
	}
	return Candid(spec), nil
}

// Candid renders spec as a Candid service description. Types come first in
// name order, then the service block with methods in name order.
func Candid(spec *ir.ServiceSpec) string {
	var b strings.Builder

	types := append([]ir.TypeDef(nil), spec.Types...)
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	for _, t := range types {
		fmt.Fprintf(&b, "type %s = %s;\n", t.Name, candidType(t))
	}

	methods := append([]ir.MethodSig(nil), spec.Methods...)
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	b.WriteString("service : {\n")
	for _, m := range methods {
		fmt.Fprintf(&b, "  %s : (%s) -> (%s)", m.Name, strings.Join(m.Args, ", "), strings.Join(m.Returns, ", "))
		if m.Mode == ir.ModeQuery {
			b.WriteString(" query")
		}
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func candidType(t ir.TypeDef) string {
	switch t.Kind {
	case ir.KindAlias:
		return t.Alias
	case ir.KindVariant:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			if f.Type == "" || f.Type == "null" {
				parts[i] = f.Name
				continue
			}
			parts[i] = fmt.Sprintf("%s : %s", f.Name, f.Type)
		}
		return "variant { " + strings.Join(parts, "; ") + " }"
	default:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = fmt.Sprintf("%s : %s", f.Name, f.Type)
		}
		return "record { " + strings.Join(parts, "; ") + " }"
	}
}
