package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt/local"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/proxy"
	"github.com/roach88/mintfactory/internal/registry"
	"github.com/roach88/mintfactory/internal/store"
)

var (
	factoryID = ir.DerivePrincipal("mintfactory")
	aliceID   = ir.DerivePrincipal("alice")
	bobID     = ir.DerivePrincipal("bob")
)

func newTestServer(t *testing.T, funds uint64) (*httptest.Server, *store.Store) {
	t.Helper()
	ctx := testContext(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cat, err := registry.Default()
	require.NoError(t, err)
	r, err := local.New(ctx, s, local.WithCatalog(cat))
	require.NoError(t, err)
	require.NoError(t, r.Fund(ctx, factoryID, funds))

	agent := r.Agent(factoryID)
	orch := factory.NewOrchestrator(agent, cat)
	px := proxy.New(agent, proxy.NewTable(cat.Modules()))
	srv := New(orch, px, WithIDGenerator(flow.NewFixedGenerator("req-1", "req-2", "req-3", "req-4")))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func post(t *testing.T, url, caller, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(HeaderCaller, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateThenMint(t *testing.T) {
	ts, s := newTestServer(t, factory.DefaultCreateCycles)

	resp := post(t, ts.URL+"/v1/collections", aliceID.String(),
		`{"name":"Punks","symbol":"PNK","supply_cap":"10000","wasm_name":"icrc7"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(HeaderRequestID))

	col := decode[map[string]any](t, resp)
	unit := col["canister_id"].(string)
	assert.Equal(t, ir.UnitIDFromSeq(0).String(), unit)
	assert.Equal(t, "handed_off", col["ownership"])
	assert.Equal(t, "req-1", col["request_id"])

	rec, err := s.ReadUnit(testContext(t), ir.MustPrincipal(unit))
	require.NoError(t, err)
	assert.Equal(t, []ir.Principal{aliceID}, rec.Controllers)

	mint := `{"id":1,"name":"Punk #1","image":"ipfs://punk","to":{"owner":"` + bobID.String() +
		`"},"canister_name":"icrc7","canister_id":"` + unit + `"}`
	resp = post(t, ts.URL+"/v1/mint", "", mint)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1}`, string(body))

	resp = post(t, ts.URL+"/v1/mint", "", mint)
	out := decode[ir.MintOutcome](t, resp)
	assert.Equal(t, ir.MintErr("token 1 already exists"), out)
}

func TestCreateCollection_Errors(t *testing.T) {
	tests := []struct {
		name   string
		funds  uint64
		caller string
		body   string
		status int
		errMsg string
	}{
		{"anonymous", factory.DefaultCreateCycles, "", `{"name":"P","symbol":"P","wasm_name":"icrc7"}`, http.StatusBadRequest, "anonymous caller"},
		{"bad caller header", factory.DefaultCreateCycles, "nope", `{"name":"P","symbol":"P","wasm_name":"icrc7"}`, http.StatusBadRequest, HeaderCaller},
		{"unknown module", factory.DefaultCreateCycles, aliceID.String(), `{"name":"P","symbol":"P","wasm_name":"erc721"}`, http.StatusBadRequest, "unknown module"},
		{"unknown field", factory.DefaultCreateCycles, aliceID.String(), `{"name":"P","colour":"red","wasm_name":"icrc7"}`, http.StatusBadRequest, "invalid request body"},
		{"malformed json", factory.DefaultCreateCycles, aliceID.String(), `{`, http.StatusBadRequest, "invalid request body"},
		{"out of cycles", 1, aliceID.String(), `{"name":"P","symbol":"P","wasm_name":"icrc7"}`, http.StatusInternalServerError, "create_collection aborted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tt.funds)

			resp := post(t, ts.URL+"/v1/collections", tt.caller, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode[errorResponse](t, resp)
			assert.Contains(t, body.Error, tt.errMsg)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}
}

func TestMint_InvalidTarget(t *testing.T) {
	ts, _ := newTestServer(t, factory.DefaultCreateCycles)

	resp := post(t, ts.URL+"/v1/mint", "",
		`{"id":1,"name":"x","image":"","to":{"owner":"`+bobID.String()+`"},"canister_name":"dip721","canister_id":"aaaaa-aa"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ir.MintOther("invalid canister id"), decode[ir.MintOutcome](t, resp))

	resp = post(t, ts.URL+"/v1/mint", "", `{"id":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInterface(t *testing.T) {
	ts, _ := newTestServer(t, factory.DefaultCreateCycles)

	resp, err := http.Get(ts.URL + "/v1/interface")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mint_proxy : (MintArgs) -> (MintResponse);")

	resp, err = http.Get(ts.URL + "/v1/interface?format=json")
	require.NoError(t, err)
	defer resp.Body.Close()
	spec := decode[ir.ServiceSpec](t, resp)
	assert.Equal(t, "mintfactory", spec.Name)
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, factory.DefaultCreateCycles)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, ts.URL+"/v1/mint", "",
		`{"id":1,"name":"x","image":"","to":{"owner":"`+bobID.String()+`"},"canister_name":"nope","canister_id":"aaaaa-aa"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `mintfactory_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, text, `mintfactory_proxy_mint_outcomes_total{outcome="other"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", "req-1"},
		{"well formed", "0190f3c2-7a1b-7c3d-8e4f-0123456789ab", "0190f3c2-7a1b-7c3d-8e4f-0123456789ab"},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), "req-1"},
		{"unsafe characters", "req 1 level=ERROR", "req-1"},
		{"longest accepted", strings.Repeat("b", maxRequestIDLen), strings.Repeat("b", maxRequestIDLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, factory.DefaultCreateCycles)

			req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.Header.Get(HeaderRequestID))
		})
	}
}
