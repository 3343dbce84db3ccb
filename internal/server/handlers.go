package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/healthstore"
	"github.com/roach88/healthstore/internal/record"
)

// Query parameters of reads and selections.
const (
	paramProjection = "projection"
	paramWhere      = "where"
	paramArg        = "arg"
	paramSort       = "sort"
)

// QueryResponse is the body of a read.
type QueryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// InsertResponse is the body of an insert. URI is empty when the insert
// was denied.
type InsertResponse struct {
	URI string `json:"uri"`
}

// CountResponse is the body of updates, deletes and bulk inserts.
type CountResponse struct {
	Count  int64 `json:"count"`
	Denied bool  `json:"denied,omitempty"`
}

// BatchRequest is the body of POST /batch.
type BatchRequest struct {
	Operations []coordinator.Operation `json:"operations"`
}

// BatchResponse carries one result per operation.
type BatchResponse struct {
	Results []coordinator.Result `json:"results"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(CallerHeader))
		if caller == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "missing " + CallerHeader + " header",
				Code:  string(coordinator.ErrCodeNoCaller),
			})
			return
		}
		if caller == s.hs.Owner() && !s.ownerAuthorized(r) {
			s.logger.Warn("owner claim rejected", "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "acting as " + caller + " requires the owner token",
				Code:  codeUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(coordinator.WithCaller(r.Context(), caller)))
	})
}

// ownerAuthorized reports whether r carries the configured owner token.
func (s *Server) ownerAuthorized(r *http.Request) bool {
	if len(s.ownerToken) == 0 {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), s.ownerToken) == 1
}

// address maps a request path onto a store address.
func (s *Server) address(r *http.Request) string {
	return s.hs.Router().Authority() + "/" + strings.Trim(r.URL.Path, "/")
}

func selection(r *http.Request) (string, []any) {
	q := r.URL.Query()
	var args []any
	for _, a := range q[paramArg] {
		args = append(args, a)
	}
	return q.Get(paramWhere), args
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	where, args := selection(r)
	req := coordinator.QueryRequest{
		URI:       s.address(r),
		Where:     where,
		Args:      args,
		SortOrder: r.URL.Query().Get(paramSort),
	}
	if p := r.URL.Query().Get(paramProjection); p != "" {
		for _, col := range strings.Split(p, ",") {
			req.Projection = append(req.Projection, strings.TrimSpace(col))
		}
	}

	rows, err := s.hs.Query(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := QueryResponse{Columns: rows.Columns, Rows: rows.Data}
	if resp.Rows == nil {
		resp.Rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request) {
	var values record.Values
	if !decode(w, r, &values) {
		return
	}
	uri, err := s.hs.Insert(r.Context(), s.address(r), values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if uri == "" {
		status = http.StatusOK
	}
	writeJSON(w, status, InsertResponse{URI: uri})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var values record.Values
	if !decode(w, r, &values) {
		return
	}
	where, args := selection(r)
	n, err := s.hs.Update(r.Context(), s.address(r), values, where, args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse(n))
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	where, args := selection(r)
	n, err := s.hs.Delete(r.Context(), s.address(r), where, args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse(n))
}

func (s *Server) bulkInsert(w http.ResponseWriter, r *http.Request) {
	var values []record.Values
	if !decode(w, r, &values) {
		return
	}
	uri := strings.TrimSuffix(s.address(r), "/bulk")
	n, err := s.hs.BulkInsert(r.Context(), uri, values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	// Operation URIs are paths relative to the authority, like request paths.
	for i := range req.Operations {
		req.Operations[i].URI = s.hs.Router().Authority() + "/" + strings.Trim(req.Operations[i].URI, "/")
	}
	results, err := s.hs.ApplyBatch(r.Context(), req.Operations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

func (s *Server) dump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.hs.Dump(w, ""); err != nil {
		s.logger.Error("dump failed", "error", err)
	}
}

func countResponse(n int64) CountResponse {
	if n == coordinator.DeniedCount {
		return CountResponse{Denied: true}
	}
	return CountResponse{Count: n}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "malformed request body",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// classify maps an error onto a status and code.
func classify(err error) (int, string) {
	code := healthstore.ErrorCode(err)
	switch code {
	case healthstore.CodeInvalidInput,
		healthstore.CodeUnsupportedVersion,
		healthstore.CodeValidation,
		healthstore.CodeBadRequest:
		return http.StatusBadRequest, code
	case string(coordinator.ErrCodeInvalidAddress):
		return http.StatusNotFound, code
	case string(coordinator.ErrCodeUnsupported):
		return http.StatusMethodNotAllowed, code
	case string(coordinator.ErrCodeNoCaller):
		return http.StatusUnauthorized, code
	case healthstore.CodeUnknown:
		return http.StatusInternalServerError, "INTERNAL"
	}
	return http.StatusInternalServerError, code
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
		writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: code})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
