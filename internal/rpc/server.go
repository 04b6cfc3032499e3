// Package rpc exposes the ADI façade as a small JSON-over-HTTP service for
// companion processes that want anisette headers without embedding the
// emulator themselves.
package rpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/libanisette/anisette-go/internal/adi"
	"github.com/libanisette/anisette-go/internal/log"
)

var errDSIDRequired = errors.New("dsid is required")

// Server serializes concurrent requests onto a single *adi.Adi: the
// emulator it wraps is not re-entrant, so every request takes a lock for
// the duration of its ADI call rather than sharing access unguarded.
type Server struct {
	mu  sync.Mutex
	adi *adi.Adi
	log *log.Logger
}

// New wraps an already-constructed Adi session behind an HTTP handler.
func New(a *adi.Adi, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{adi: a, log: logger}
}

// Handler returns the mux this server answers requests on.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/headers", s.handleHeaders)
	return mux
}

type headersRequest struct {
	DSID uint64 `json:"dsid"`
}

type headersResponse struct {
	OTP       string `json:"otp"`
	MachineID string `json:"machineId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	var req headersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DSID == 0 {
		writeError(w, http.StatusBadRequest, errDSIDRequired)
		return
	}

	s.mu.Lock()
	otp, err := s.adi.RequestOTP(req.DSID)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("request otp failed", log.Ptr("dsid", req.DSID))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, headersResponse{
		OTP:       base64.StdEncoding.EncodeToString(otp.OTP),
		MachineID: base64.StdEncoding.EncodeToString(otp.MachineID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
