package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adwatch-backend/internal/detection"
	"adwatch-backend/pkg/log"
)

// JSON-RPC error codes.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

type serverRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type serverResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// Server exposes a MetricSource as the metrics.fetch JSON-RPC method, the
// counterpart of RemoteSource.
type Server struct {
	Source  detection.MetricSource
	Timeout time.Duration
	Logger  log.Logger
}

func (s *Server) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNop()
	}
	return s.Logger
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeRPC(w, http.StatusMethodNotAllowed, serverResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "method not allowed"}})
		return
	}
	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, http.StatusBadRequest, serverResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParse, Message: "invalid json"}})
		return
	}
	writeRPC(w, http.StatusOK, s.handle(r.Context(), req))
}

// ServeStdio answers a single request read from in.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	var req serverRequest
	resp := serverResponse{JSONRPC: "2.0"}
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		resp.Error = &rpcError{Code: codeParse, Message: "invalid json"}
	} else {
		resp = s.handle(ctx, req)
	}
	return json.NewEncoder(out).Encode(resp)
}

func (s *Server) handle(ctx context.Context, req serverRequest) serverResponse {
	resp := serverResponse{JSONRPC: "2.0", ID: req.ID}
	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = &rpcError{Code: codeInvalidRequest, Message: "invalid request"}
		return resp
	}
	if req.Method != methodFetch {
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
		return resp
	}
	var params FetchRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Metric == "" {
		resp.Error = &rpcError{Code: codeInvalidParams, Message: "invalid params"}
		return resp
	}
	start, end, err := parseRange(params.Start, params.End)
	if err != nil {
		resp.Error = &rpcError{Code: codeInvalidParams, Message: err.Error()}
		return resp
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	values, err := s.Source.FetchMetrics(ctx, params.Entity, params.Metric, start, end)
	if err != nil {
		s.logger().Warnf(ctx, "metrics.fetch %s for %s: %v", params.Metric, params.Entity.ID, err)
		resp.Error = &rpcError{Code: codeInternal, Message: err.Error()}
		return resp
	}
	if values == nil {
		values = []float64{}
	}
	resp.Result = FetchResult{Values: values}
	return resp
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end before start")
	}
	return start, end, nil
}

func writeRPC(w http.ResponseWriter, status int, resp serverResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
