package factory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/testutil"
)

var (
	factoryID = ir.DerivePrincipal("mintfactory")
	aliceID   = ir.DerivePrincipal("alice")
)

// mapRegistry is a registry backed by a map.
type mapRegistry map[string][]byte

func (m mapRegistry) Module(name string) []byte { return m[name] }

var testModule = []byte("\x1f\x8b\x08\x00icrc7")

func newTestOrchestrator(rt hostrt.Runtime, opts ...Option) *Orchestrator {
	opts = append([]Option{WithIDGenerator(testutil.NewFixedRequestID("req-1"))}, opts...)
	return NewOrchestrator(rt, mapRegistry{"icrc7": testModule}, opts...)
}

func punksRequest() ir.CreateRequest {
	return ir.CreateRequest{Name: "Punks", Symbol: "PNK", WasmName: "icrc7"}
}

func TestCreateCollection_Success(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt)

	col, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.NoError(t, err)

	assert.Equal(t, ir.UnitIDFromSeq(0), col.Unit)
	assert.Equal(t, "icrc7", col.Module)
	assert.Equal(t, ir.ModuleHash(testModule), col.ModuleHash)
	assert.Equal(t, HandedOff, col.Ownership)
	assert.Equal(t, "req-1", col.RequestID)

	assert.Equal(t, []string{testutil.OpCreateUnit, testutil.OpInstallCode, testutil.OpUpdateSettings}, rt.Ops())

	calls := rt.Calls()
	assert.Equal(t, []ir.Principal{aliceID, factoryID}, calls[0].Settings.Controllers)
	assert.Zero(t, calls[0].Settings.ComputeAllocation)
	assert.Zero(t, calls[0].Settings.MemoryAllocation)
	assert.Zero(t, calls[0].Settings.FreezingThreshold)
	assert.Equal(t, DefaultCreateCycles, calls[0].Cycles)

	install := calls[1].Install
	assert.Equal(t, hostrt.ModeInstall, install.Mode)
	assert.Equal(t, col.Unit, install.Unit)
	assert.Equal(t, testModule, install.Module)

	rec, err := ir.DecodeInitRecord(install.Arg)
	require.NoError(t, err)
	assert.Equal(t, "Punks", rec.Name)
	assert.Equal(t, "PNK", rec.Symbol)
	assert.Equal(t, uint16(1), rec.TxWindow)
	assert.Equal(t, uint16(1), rec.PermittedDrift)
	require.NotNil(t, rec.MintingAuthority)
	assert.Equal(t, aliceID, *rec.MintingAuthority)
	assert.Nil(t, rec.Royalties)
	assert.Nil(t, rec.Description)
	assert.Nil(t, rec.SupplyCap)

	assert.Equal(t, []ir.Principal{aliceID}, calls[2].Settings.Controllers)
}

func TestCreateCollection_CopiesOptionalFields(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt)

	royalties := uint16(250)
	desc := "punks"
	supplyCap := ir.NatFromUint64(10_000)
	req := punksRequest()
	req.Royalties = &royalties
	req.RoyaltiesRecipient = &ir.Account{Owner: aliceID}
	req.Description = &desc
	req.Image = []byte{0x89, 'P', 'N', 'G'}
	req.SupplyCap = &supplyCap

	_, err := o.CreateCollection(context.Background(), aliceID, req)
	require.NoError(t, err)

	rec, err := ir.DecodeInitRecord(rt.Calls()[1].Install.Arg)
	require.NoError(t, err)
	assert.Equal(t, uint16(250), *rec.Royalties)
	assert.Equal(t, aliceID, rec.RoyaltiesRecipient.Owner)
	assert.Equal(t, "punks", *rec.Description)
	assert.Equal(t, req.Image, rec.Image)
	assert.Equal(t, "10000", rec.SupplyCap.String())
}

func TestCreateCollection_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		caller ir.Principal
		req    ir.CreateRequest
		want   error
	}{
		{"anonymous caller", ir.AnonymousPrincipal, punksRequest(), ErrAnonymousCaller},
		{"unknown module", aliceID, ir.CreateRequest{Name: "x", WasmName: "erc721"}, ErrUnknownModule},
		{"empty module name", aliceID, ir.CreateRequest{Name: "x"}, ErrUnknownModule},
		{"supply cap over 128 bits", aliceID, withSupplyCap(punksRequest(), "340282366920938463463374607431768211456"), ErrSupplyCapRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.NewFakeRuntime(factoryID)
			o := newTestOrchestrator(rt)

			col, err := o.CreateCollection(context.Background(), tt.caller, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
			assert.Equal(t, Collection{}, col)
			assert.Empty(t, rt.Ops())
		})
	}
}

func withSupplyCap(req ir.CreateRequest, text string) ir.CreateRequest {
	n, err := ir.ParseNat(text)
	if err != nil {
		panic(err)
	}
	req.SupplyCap = &n
	return req
}

func TestCreateCollection_SupplyCapAtBound(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt)

	req := withSupplyCap(punksRequest(), "340282366920938463463374607431768211455")
	_, err := o.CreateCollection(context.Background(), aliceID, req)
	require.NoError(t, err)

	rec, err := ir.DecodeInitRecord(rt.Calls()[1].Install.Arg)
	require.NoError(t, err)
	assert.Equal(t, ir.Nat128Max.String(), rec.SupplyCap.String())
}

func TestCreateCollection_BadRoyaltiesRecipient(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt)

	req := punksRequest()
	req.RoyaltiesRecipient = &ir.Account{Owner: aliceID, Subaccount: []byte{1}}

	_, err := o.CreateCollection(context.Background(), aliceID, req)
	assert.True(t, IsValidation(err))
	assert.Empty(t, rt.Ops())
}

func TestCreateCollection_ProvisionFailure(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	rt.FailCreate = hostrt.Rejectf(hostrt.CanisterReject, "insufficient cycles")
	o := newTestOrchestrator(rt)

	col, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.Error(t, err)
	assert.True(t, IsStage(err, StageProvision))
	assert.Equal(t, Collection{}, col)

	rej, ok := hostrt.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "insufficient cycles", rej.Message)

	// Install is never attempted.
	assert.Equal(t, []string{testutil.OpCreateUnit}, rt.Ops())
}

func TestCreateCollection_SentinelAddressIsFailure(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	sentinel := ir.AnonymousPrincipal
	rt.CreateResult = &sentinel
	o := newTestOrchestrator(rt)

	_, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	assert.ErrorIs(t, err, ErrSentinelAddress)
	assert.Equal(t, 0, rt.Count(testutil.OpInstallCode))
}

func TestCreateCollection_InstallFailureDeletesUnit(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	rt.FailInstall = hostrt.Rejectf(hostrt.CanisterError, "trapped during init")
	o := newTestOrchestrator(rt)

	col, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.Error(t, err)
	assert.Equal(t, Collection{}, col)
	assert.True(t, IsStage(err, StageInstall))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ir.UnitIDFromSeq(0), fe.Unit)
	assert.False(t, fe.Orphaned)

	rej, ok := hostrt.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, hostrt.CanisterError, rej.Code)

	assert.Equal(t, []string{testutil.OpCreateUnit, testutil.OpInstallCode, testutil.OpDeleteUnit}, rt.Ops())
}

func TestCreateCollection_InstallFailureOrphans(t *testing.T) {
	t.Run("cleanup disabled", func(t *testing.T) {
		rt := testutil.NewFakeRuntime(factoryID)
		rt.FailInstall = hostrt.Rejectf(hostrt.CanisterReject, "no")
		o := newTestOrchestrator(rt, WithCleanupOnFailure(false))

		_, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
		var fe *Error
		require.True(t, errors.As(err, &fe))
		assert.True(t, fe.Orphaned)
		assert.Contains(t, err.Error(), "orphaned")
		assert.Equal(t, 0, rt.Count(testutil.OpDeleteUnit))
	})

	t.Run("cleanup fails", func(t *testing.T) {
		rt := testutil.NewFakeRuntime(factoryID)
		rt.FailInstall = hostrt.Rejectf(hostrt.CanisterReject, "no")
		rt.FailDelete = hostrt.Rejectf(hostrt.SysTransient, "busy")
		o := newTestOrchestrator(rt)

		_, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
		var fe *Error
		require.True(t, errors.As(err, &fe))
		assert.True(t, fe.Orphaned)
		assert.Equal(t, 1, rt.Count(testutil.OpDeleteUnit))
	})
}

func TestCreateCollection_HandOff(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rt := testutil.NewFakeRuntime(factoryID)
		o := newTestOrchestrator(rt, WithHandOff(false))

		col, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
		require.NoError(t, err)
		assert.Equal(t, CodeInstalled, col.Ownership)
		assert.Equal(t, 0, rt.Count(testutil.OpUpdateSettings))
	})

	t.Run("failure keeps the collection", func(t *testing.T) {
		var buf bytes.Buffer
		rt := testutil.NewFakeRuntime(factoryID)
		rt.FailUpdate = hostrt.Rejectf(hostrt.SysTransient, "busy")
		o := newTestOrchestrator(rt, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		col, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
		require.NoError(t, err)
		assert.Equal(t, CodeInstalled, col.Ownership)
		assert.Equal(t, ir.UnitIDFromSeq(0), col.Unit)
		assert.Contains(t, buf.String(), "hand-off failed")
		assert.Contains(t, buf.String(), "request_id=req-1")
	})
}

func TestCreateCollection_LogsRequestDigest(t *testing.T) {
	var buf bytes.Buffer
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.NoError(t, err)

	digest, err := ir.RequestDigest("create_collection", NewInitRecord(aliceID, punksRequest()).ToIR())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "digest="+digest)
}

func TestCreateCollection_CustomCycles(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt, WithCreateCycles(42))

	_, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rt.Calls()[0].Cycles)
}

func TestCreateCollection_IndependentRequests(t *testing.T) {
	rt := testutil.NewFakeRuntime(factoryID)
	o := newTestOrchestrator(rt)

	first, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.NoError(t, err)
	second, err := o.CreateCollection(context.Background(), aliceID, punksRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.Unit, second.Unit)
	assert.Equal(t, 2, rt.Count(testutil.OpCreateUnit))
}
