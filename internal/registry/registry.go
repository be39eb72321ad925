// Package registry maps module names to installable code payloads.
//
// The default catalog is embedded in the binary. A directory with the same
// layout (catalog.cue plus the payload files it names) can replace it.
package registry

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/roach88/mintfactory/internal/compiler"
	"github.com/roach88/mintfactory/internal/ir"
)

// CatalogFile is the catalog document name inside a module directory.
const CatalogFile = "catalog.cue"

//go:embed modules
var embedded embed.FS

var (
	wasmMagic = []byte("\x00asm")
	gzipMagic = []byte{0x1f, 0x8b}
)

// Registry resolves a module name to its payload. Unknown names yield an
// empty slice, never an error.
type Registry interface {
	Module(name string) []byte
}

// Catalog is an immutable, validated set of modules.
type Catalog struct {
	specs    []ir.ModuleSpec
	byName   map[string]int
	byHash   map[string]int
	payloads map[string][]byte
}

var _ Registry = (*Catalog)(nil)

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "modules")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads a catalog from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("modules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("modules dir %s: not a directory", dir)
	}
	return Load(os.DirFS(dir))
}

// Load reads catalog.cue from fsys, then every payload it names. Payloads
// must be non-empty wasm or gzip-compressed wasm.
func Load(fsys fs.FS) (*Catalog, error) {
	src, err := fs.ReadFile(fsys, CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	specs, err := compiler.CompileCatalogSource(src, CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("compile catalog: %w", err)
	}

	c := &Catalog{
		byName:   make(map[string]int, len(specs)),
		byHash:   make(map[string]int, len(specs)),
		payloads: make(map[string][]byte, len(specs)),
	}

	slices.SortFunc(specs, func(a, b ir.ModuleSpec) int {
		return strings.Compare(a.Name, b.Name)
	})

	for i, spec := range specs {
		payload, err := fs.ReadFile(fsys, spec.File)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}
		if err := checkPayload(payload); err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}

		spec.Hash = ir.ModuleHash(payload)
		spec.Size = len(payload)
		if prev, dup := c.byHash[spec.Hash]; dup {
			return nil, fmt.Errorf("module %s: same payload as module %s", spec.Name, specs[prev].Name)
		}

		specs[i] = spec
		c.byName[spec.Name] = i
		c.byHash[spec.Hash] = i
		c.payloads[spec.Name] = payload
	}
	c.specs = specs

	return c, nil
}

func checkPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	if !bytes.HasPrefix(payload, wasmMagic) && !bytes.HasPrefix(payload, gzipMagic) {
		return fmt.Errorf("payload is neither wasm nor gzip")
	}
	return nil
}

// IsModulePayload reports whether b looks like installable code.
func IsModulePayload(b []byte) bool {
	return checkPayload(b) == nil
}

// Module returns a copy of the payload registered under name, or nil.
func (c *Catalog) Module(name string) []byte {
	return slices.Clone(c.payloads[name])
}

// Lookup returns the spec registered under name.
func (c *Catalog) Lookup(name string) (ir.ModuleSpec, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ir.ModuleSpec{}, false
	}
	return c.specs[i], true
}

// ByHash returns the spec whose payload hashes to hash.
func (c *Catalog) ByHash(hash string) (ir.ModuleSpec, bool) {
	i, ok := c.byHash[hash]
	if !ok {
		return ir.ModuleSpec{}, false
	}
	return c.specs[i], true
}

// Modules returns every spec, sorted by name.
func (c *Catalog) Modules() []ir.ModuleSpec {
	return slices.Clone(c.specs)
}
