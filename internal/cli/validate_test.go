package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/compiler"
)

func writeCatalog(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(src), 0o644))
	return dir
}

func TestValidate_EmbeddedCatalog(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Config and catalog valid (2 module(s))")
}

func TestValidate_ModulesDirJSON(t *testing.T) {
	resp, err := executeJSON(t, "validate", filepath.Join("..", "registry", "modules"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var result ValidationResult
	decodeData(t, resp.Data, &result)
	assert.True(t, result.Valid)
	assert.Len(t, result.Modules, 2)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{
			name: "missing directory",
			dir:  func(t *testing.T) string { return "/nonexistent/modules" },
			code: ErrCodeLoad,
		},
		{
			name: "syntax error",
			dir:  func(t *testing.T) string { return writeCatalog(t, "module: {\n") },
			code: ErrCodeCompile,
		},
		{
			name: "missing payload",
			dir: func(t *testing.T) string {
				return writeCatalog(t, `module: nft: { file: "nft.wasm", kind: "icrc7" }`)
			},
			code: ErrCodeLoad,
		},
		{
			name: "bad module name",
			dir: func(t *testing.T) string {
				return writeCatalog(t, `module: Nft: { file: "nft.wasm", kind: "icrc7" }`)
			},
			code: compiler.ErrInvalidModuleName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := executeJSON(t, "validate", tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestValidate_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mintfactory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("create_cycles: 0\n"), 0o644))

	out, err := execute(t, "--config", path, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeConfig+": invalid config: create_cycles must be positive")
}

func TestValidate_TooManyArgs(t *testing.T) {
	_, err := execute(t, "validate", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts at most 1 arg")
}
