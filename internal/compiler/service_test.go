package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/ir"
)

func TestCompileServiceBasic(t *testing.T) {
	src := `
service: demo: {
	type: {
		Account: record: { owner: "principal", subaccount: "opt blob" }
		Result:  variant: { ok: "nat", err: "text" }
		Id:      alias: "nat"
	}
	method: {
		mint:  { args: ["Account"], returns: ["Result"] }
		peek:  { args: [], returns: ["text"], mode: "query" }
	}
}
`
	spec, err := CompileServiceSource([]byte(src), "service.cue")
	require.NoError(t, err)

	assert.Equal(t, "demo", spec.Name)
	require.Len(t, spec.Types, 3)
	assert.Equal(t, ir.TypeDef{
		Name: "Account",
		Kind: ir.KindRecord,
		Fields: []ir.FieldDef{
			{Name: "owner", Type: "principal"},
			{Name: "subaccount", Type: "opt blob"},
		},
	}, spec.Types[0])
	assert.Equal(t, ir.KindVariant, spec.Types[1].Kind)
	assert.Equal(t, ir.TypeDef{Name: "Id", Kind: ir.KindAlias, Alias: "nat"}, spec.Types[2])

	require.Len(t, spec.Methods, 2)
	assert.Equal(t, ir.MethodSig{Name: "mint", Args: []string{"Account"}, Returns: []string{"Result"}, Mode: ir.ModeUpdate}, spec.Methods[0])
	assert.Equal(t, ir.ModeQuery, spec.Methods[1].Mode)
	assert.Empty(t, spec.Methods[1].Args)
}

func TestCompileServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "no service",
			src:     ``,
			wantErr: "no service",
		},
		{
			name: "two services",
			src: `
service: a: method: m: { args: [], returns: [] }
service: b: method: m: { args: [], returns: [] }
`,
			wantErr: "exactly one service",
		},
		{
			name:    "no methods",
			src:     `service: a: method: {}`,
			wantErr: ErrServiceNoMethods,
		},
		{
			name:    "undefined type",
			src:     `service: a: method: m: { args: ["opt Missing"], returns: [] }`,
			wantErr: `undefined type "Missing"`,
		},
		{
			name:    "type with two kinds",
			src:     `service: a: { type: T: { alias: "nat", record: {} }, method: m: { args: [], returns: [] } }`,
			wantErr: "exactly one of",
		},
		{
			name:    "bad mode",
			src:     `service: a: method: m: { args: [], returns: [], mode: "oneway" }`,
			wantErr: "mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileServiceSource([]byte(tt.src), "service.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBaseType(t *testing.T) {
	assert.Equal(t, "nat8", baseType("opt vec nat8"))
	assert.Equal(t, "Account", baseType("Account"))
	assert.Equal(t, "", baseType("  "))
}
