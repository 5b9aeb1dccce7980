package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxHTTPBody caps response bodies returned to the guest.
const maxHTTPBody = 8 << 20

// HTTPRequest is the JSON payload of the http-request import.
type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPResponse is returned to the guest by http-request.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// DeniedHTTPResponse is what the guest sees when networking is not granted.
func DeniedHTTPResponse() []byte {
	raw, _ := json.Marshal(HTTPResponse{Error: "network access denied"})
	return raw
}

// HTTPClientFunc returns an HTTPFunc backed by client. Transport failures
// are reported to the guest in the response, not as host errors.
func HTTPClientFunc(client *http.Client) HTTPFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req HTTPRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return json.Marshal(HTTPResponse{Error: fmt.Sprintf("decode request: %v", err)})
		}
		method := strings.ToUpper(strings.TrimSpace(req.Method))
		if method == "" {
			method = http.MethodGet
		}
		var body io.Reader
		if req.Body != "" {
			body = bytes.NewBufferString(req.Body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
		if err != nil {
			return json.Marshal(HTTPResponse{Error: err.Error()})
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return json.Marshal(HTTPResponse{Error: err.Error()})
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
		if err != nil {
			return json.Marshal(HTTPResponse{Status: resp.StatusCode, Error: err.Error()})
		}
		headers := make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}
		return json.Marshal(HTTPResponse{Status: resp.StatusCode, Headers: headers, Body: string(data)})
	}
}
