package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/iface"
	"github.com/roach88/mintfactory/internal/ir"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := flow.RequestID(ctx)

	caller, err := callerFrom(r)
	if err != nil {
		s.metrics.collections.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}

	var req ir.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.metrics.collections.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}

	col, err := s.orch.CreateCollection(ctx, caller, req)
	switch {
	case err == nil:
		s.metrics.collections.WithLabelValues("created").Inc()
		writeJSON(w, http.StatusCreated, col)
	case factory.IsValidation(err):
		s.metrics.collections.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID})
	default:
		// Detail is in the orchestrator's log lines for this request id.
		s.metrics.collections.WithLabelValues("aborted").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "create_collection aborted", RequestID: requestID})
	}
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req ir.MintRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: flow.RequestID(r.Context())})
		return
	}

	out := s.proxy.Mint(r.Context(), req)
	s.metrics.mintOutcomes.WithLabelValues(string(out.Kind)).Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInterface(w http.ResponseWriter, r *http.Request) {
	spec, err := iface.Describe()
	if err != nil {
		flow.Logger(r.Context()).Error("describe interface", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "interface unavailable"})
		return
	}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, spec)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, iface.Candid(spec))
}

// callerFrom reads the caller principal. A missing header means anonymous.
func callerFrom(r *http.Request) (ir.Principal, error) {
	text := r.Header.Get(HeaderCaller)
	if text == "" {
		return ir.AnonymousPrincipal, nil
	}
	p, err := ir.ParsePrincipal(text)
	if err != nil {
		return ir.Principal{}, fmt.Errorf("%s: %w", HeaderCaller, err)
	}
	return p, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
