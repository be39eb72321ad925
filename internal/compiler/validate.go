package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/mintfactory/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Catalog errors (E120-E129)
	ErrInvalidModuleName = "E120" // module name is not an identifier
	ErrUnknownReplyForm  = "E121" // mint reply form the proxy cannot decode
	ErrDuplicateMintKind = "E122" // two mint-capable modules share a kind

	// Service errors (E130-E139)
	ErrServiceNoMethods = "E130" // at least one method required
	ErrUndefinedType    = "E131" // reference to an undeclared type
	ErrInvalidMode      = "E132" // method mode is not update or query
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateCatalog checks rules that span catalog entries.
// Returns all errors found (does not fail-fast).
func ValidateCatalog(specs []ir.ModuleSpec) []ValidationError {
	var errs []ValidationError
	mintKinds := make(map[string]string)

	for _, spec := range specs {
		field := "module." + spec.Name
		if !identRe.MatchString(spec.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "module name must match " + identRe.String(),
				Code:    ErrInvalidModuleName,
			})
		}
		if spec.Mint == nil {
			continue
		}
		if spec.Mint.Reply != ir.ReplyNat {
			errs = append(errs, ValidationError{
				Field:   field + ".mint.reply",
				Message: fmt.Sprintf("unknown reply form %q", spec.Mint.Reply),
				Code:    ErrUnknownReplyForm,
			})
		}
		if other, ok := mintKinds[spec.Kind]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("kind %q already has a mint shape in module %q", spec.Kind, other),
				Code:    ErrDuplicateMintKind,
			})
			continue
		}
		mintKinds[spec.Kind] = spec.Name
	}

	return errs
}

// builtinTypes are the primitive type names a service may reference.
var builtinTypes = map[string]bool{
	"text": true, "nat": true, "nat8": true, "nat16": true, "nat32": true, "nat64": true,
	"int": true, "bool": true, "blob": true, "principal": true, "null": true,
}

// ValidateService checks method modes and that every referenced type exists.
// Returns all errors found (does not fail-fast).
func ValidateService(spec *ir.ServiceSpec) []ValidationError {
	var errs []ValidationError

	if len(spec.Methods) == 0 {
		errs = append(errs, ValidationError{
			Field:   "service." + spec.Name,
			Message: "at least one method is required",
			Code:    ErrServiceNoMethods,
		})
	}

	declared := make(map[string]bool, len(spec.Types))
	for _, td := range spec.Types {
		declared[td.Name] = true
	}

	check := func(field, typ string) {
		if typ == "" {
			return
		}
		if name := baseType(typ); !builtinTypes[name] && !declared[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("undefined type %q", name),
				Code:    ErrUndefinedType,
			})
		}
	}

	for _, td := range spec.Types {
		for _, f := range td.Fields {
			check("type."+td.Name+"."+f.Name, f.Type)
		}
		check("type."+td.Name, td.Alias)
	}

	for _, m := range spec.Methods {
		field := "method." + m.Name
		if m.Mode != ir.ModeUpdate && m.Mode != ir.ModeQuery {
			errs = append(errs, ValidationError{
				Field:   field + ".mode",
				Message: fmt.Sprintf("invalid mode %q", m.Mode),
				Code:    ErrInvalidMode,
			})
		}
		for i, a := range m.Args {
			check(fmt.Sprintf("%s.args[%d]", field, i), a)
		}
		for i, r := range m.Returns {
			check(fmt.Sprintf("%s.returns[%d]", field, i), r)
		}
	}

	return errs
}

// baseType strips "opt" and "vec" constructors: "opt vec nat8" -> "nat8".
func baseType(typ string) string {
	parts := strings.Fields(typ)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
