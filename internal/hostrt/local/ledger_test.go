package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

func mintArg(t *testing.T, id uint64, to ir.Principal) []byte {
	t.Helper()
	data, err := ir.MintArgs{
		ID:    ir.NatFromUint64(id),
		Name:  "Punk",
		To:    ir.Account{Owner: to},
		Image: []byte(`"ipfs://punk"`),
	}.Encode()
	require.NoError(t, err)
	return data
}

func TestLedgerMint(t *testing.T) {
	f := setup(t)
	ctx := testContext(t)
	unit := f.newCollection(t, ir.InitRecord{Name: "Punks", Symbol: "PNK", TxWindow: 1, PermittedDrift: 1, WasmName: "icrc7"})

	reply, err := f.factory.Call(ctx, unit, "icrc7_mint", mintArg(t, 1, bobID))
	require.NoError(t, err)
	assert.Equal(t, "1", string(reply))

	tokens, err := f.replica.Store().ReadTokens(ctx, unit)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, bobID, tokens[0].Owner.Owner)
	assert.Equal(t, []byte(`"ipfs://punk"`), tokens[0].Image)

	_, err = f.factory.Call(ctx, unit, "icrc7_mint", mintArg(t, 1, aliceID))
	rej := requireReject(t, err, hostrt.CanisterReject)
	assert.Contains(t, rej.Message, "already exists")
}

func TestLedgerSupplyCap(t *testing.T) {
	f := setup(t)
	ctx := testContext(t)
	supplyCap := ir.NatFromUint64(2)
	unit := f.newCollection(t, ir.InitRecord{Name: "Punks", Symbol: "PNK", SupplyCap: &supplyCap, WasmName: "icrc7"})

	for id := uint64(1); id <= 2; id++ {
		_, err := f.factory.Call(ctx, unit, "icrc7_mint", mintArg(t, id, bobID))
		require.NoError(t, err)
	}
	_, err := f.factory.Call(ctx, unit, "icrc7_mint", mintArg(t, 3, bobID))
	rej := requireReject(t, err, hostrt.CanisterReject)
	assert.Contains(t, rej.Message, "supply cap 2 reached")

	reply, err := f.factory.Call(ctx, unit, MethodTotalSupply, nil)
	require.NoError(t, err)
	assert.Equal(t, "2", string(reply))

	reply, err = f.factory.Call(ctx, unit, MethodSupplyCap, nil)
	require.NoError(t, err)
	assert.Equal(t, "[2]", string(reply))
}

func TestLedgerQueries(t *testing.T) {
	f := setup(t)
	ctx := testContext(t)
	unit := f.newCollection(t, ir.InitRecord{Name: "Punks", Symbol: "PNK", WasmName: "icrc7"})

	tests := []struct {
		method string
		want   string
	}{
		{MethodName, `"Punks"`},
		{MethodSymbol, `"PNK"`},
		{MethodTotalSupply, "0"},
		{MethodSupplyCap, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			reply, err := f.factory.Call(ctx, unit, tt.method, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(reply))
		})
	}

	_, err := f.factory.Call(ctx, unit, "icrc7_burn", nil)
	requireReject(t, err, hostrt.CanisterReject)
}

func TestLedgerRejectsMalformedArgs(t *testing.T) {
	f := setup(t)
	ctx := testContext(t)
	unit := f.newCollection(t, ir.InitRecord{Name: "Punks", Symbol: "PNK", WasmName: "icrc7"})

	_, err := f.factory.Call(ctx, unit, "icrc7_mint", []byte(`{"id":1}`))
	requireReject(t, err, hostrt.CanisterReject)

	bad, err := ir.MintArgs{
		ID:   ir.NatFromUint64(1),
		Name: "Punk",
		To:   ir.Account{Owner: bobID, Subaccount: []byte{1, 2, 3}},
	}.Encode()
	require.NoError(t, err)
	_, err = f.factory.Call(ctx, unit, "icrc7_mint", bad)
	requireReject(t, err, hostrt.CanisterReject)
}
