package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/mintfactory/internal/ir"
)

// catalogSchema constrains catalog documents. Modules are closed, so unknown
// fields fail validation.
const catalogSchema = `
#Module: {
	file:         string & !=""
	kind:         string & =~"^[a-z][a-z0-9_]*$"
	description?: string
	mint?: {
		method: string & !=""
		reply:  *"nat" | string
	}
}
module: [string]: #Module
`

// CompileCatalogSource compiles a catalog document. Hash and Size of the
// returned specs are left zero; they belong to the payload, not the source.
func CompileCatalogSource(src []byte, filename string) ([]ir.ModuleSpec, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(catalogSchema, cue.Filename("schema.cue"))
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

	return CompileCatalog(v)
}

// CompileCatalog reads every entry under the "module" field.
func CompileCatalog(v cue.Value) ([]ir.ModuleSpec, error) {
	modulesVal := v.LookupPath(cue.ParsePath("module"))
	if !modulesVal.Exists() {
		return nil, &CompileError{
			Field:   "module",
			Message: "catalog declares no modules",
			Pos:     v.Pos(),
		}
	}

	iter, err := modulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.ModuleSpec
	for iter.Next() {
		spec, err := CompileModule(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, &CompileError{
			Field:   "module",
			Message: "catalog declares no modules",
			Pos:     modulesVal.Pos(),
		}
	}

	if errs := ValidateCatalog(specs); len(errs) > 0 {
		return nil, errs[0]
	}
	return specs, nil
}

// CompileModule parses a single catalog entry.
func CompileModule(name string, v cue.Value) (ir.ModuleSpec, error) {
	spec := ir.ModuleSpec{Name: name}

	var err error
	if spec.File, err = requiredString(v, "file", name); err != nil {
		return spec, err
	}
	if spec.Kind, err = requiredString(v, "kind", name); err != nil {
		return spec, err
	}

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		if spec.Description, err = d.String(); err != nil {
			return spec, formatCUEError(err)
		}
	}

	mintVal := v.LookupPath(cue.ParsePath("mint"))
	if mintVal.Exists() {
		shape := &ir.MintShape{}
		if shape.Method, err = requiredString(mintVal, "method", name+".mint"); err != nil {
			return spec, err
		}
		if shape.Reply, err = requiredString(mintVal, "reply", name+".mint"); err != nil {
			return spec, err
		}
		spec.Mint = shape
	}

	return spec, nil
}

func requiredString(v cue.Value, field, owner string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   fmt.Sprintf("module.%s.%s", owner, field),
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
