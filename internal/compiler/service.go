package compiler

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/mintfactory/internal/ir"
)

const serviceSchema = `
#Type: {
	record?:  [string]: string
	variant?: [string]: string
	alias?:   string
}
#Method: {
	args:    [...string]
	returns: [...string]
	mode:    *"update" | "query"
}
service: [string]: {
	type?:  [string]: #Type
	method: [string]: #Method
}
`

// CompileServiceSource compiles a document holding exactly one service.
func CompileServiceSource(src []byte, filename string) (*ir.ServiceSpec, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(serviceSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	servicesVal := v.LookupPath(cue.ParsePath("service"))
	iter, err := servicesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var spec *ir.ServiceSpec
	for iter.Next() {
		if spec != nil {
			return nil, &CompileError{
				Field:   "service",
				Message: "exactly one service per document",
				Pos:     iter.Value().Pos(),
			}
		}
		if spec, err = CompileService(iter.Label(), iter.Value()); err != nil {
			return nil, err
		}
	}
	if spec == nil {
		return nil, &CompileError{Field: "service", Message: "no service declared", Pos: v.Pos()}
	}

	if errs := ValidateService(spec); len(errs) > 0 {
		return nil, errs[0]
	}
	return spec, nil
}

// CompileService parses one service struct. Types and methods keep their
// declaration order.
func CompileService(name string, v cue.Value) (*ir.ServiceSpec, error) {
	spec := &ir.ServiceSpec{Name: name}

	if typesVal := v.LookupPath(cue.ParsePath("type")); typesVal.Exists() {
		iter, err := typesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			td, err := parseTypeDef(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Types = append(spec.Types, td)
		}
	}

	methodsVal := v.LookupPath(cue.ParsePath("method"))
	iter, err := methodsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		m, err := parseMethod(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Methods = append(spec.Methods, m)
	}

	return spec, nil
}

func parseTypeDef(name string, v cue.Value) (ir.TypeDef, error) {
	td := ir.TypeDef{Name: name}
	kinds := 0

	for _, kind := range []string{ir.KindRecord, ir.KindVariant} {
		kv := v.LookupPath(cue.ParsePath(kind))
		if !kv.Exists() {
			continue
		}
		kinds++
		td.Kind = kind
		iter, err := kv.Fields()
		if err != nil {
			return td, formatCUEError(err)
		}
		for iter.Next() {
			typ, err := iter.Value().String()
			if err != nil {
				return td, formatCUEError(err)
			}
			td.Fields = append(td.Fields, ir.FieldDef{Name: iter.Label(), Type: typ})
		}
	}

	if av := v.LookupPath(cue.ParsePath(ir.KindAlias)); av.Exists() {
		kinds++
		td.Kind = ir.KindAlias
		alias, err := av.String()
		if err != nil {
			return td, formatCUEError(err)
		}
		td.Alias = alias
	}

	if kinds != 1 {
		return td, &CompileError{
			Field:   "type." + name,
			Message: "exactly one of record, variant or alias is required",
			Pos:     v.Pos(),
		}
	}
	return td, nil
}

func parseMethod(name string, v cue.Value) (ir.MethodSig, error) {
	m := ir.MethodSig{Name: name}

	var err error
	if m.Args, err = stringList(v.LookupPath(cue.ParsePath("args"))); err != nil {
		return m, err
	}
	if m.Returns, err = stringList(v.LookupPath(cue.ParsePath("returns"))); err != nil {
		return m, err
	}
	if m.Mode, err = v.LookupPath(cue.ParsePath("mode")).String(); err != nil {
		return m, formatCUEError(err)
	}
	return m, nil
}

func stringList(v cue.Value) ([]string, error) {
	out := []string{}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
