package metricsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"
)

const defaultCallTimeout = 10 * time.Second

type Transport interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

func DefaultHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{Endpoint: endpoint, Timeout: defaultCallTimeout}
}

func DefaultStdioTransport(cmd string, args []string) *StdioTransport {
	return &StdioTransport{Command: cmd, Args: args, Timeout: defaultCallTimeout}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func encodeRequest(method string, params any) ([]byte, error) {
	return json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
}

func decodeResponse(data []byte) (json.RawMessage, error) {
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

type HTTPTransport struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	data, err := encodeRequest(method, params)
	if err != nil {
		return nil, err
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: t.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("metric endpoint returned %s", resp.Status)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return decodeResponse(buf.Bytes())
}

// StdioTransport runs Command once per call, writing the request to stdin
// and reading one response from stdout.
type StdioTransport struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	data, err := encodeRequest(method, params)
	if err != nil {
		return nil, err
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", t.Command, err)
	}
	return decodeResponse(output)
}
