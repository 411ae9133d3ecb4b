package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pthm/forgewire/lib/protocol"
)

// Reply is the outcome of one action request. Exactly one of Response,
// Failure or Err describes it: Err for transport errors, Failure for
// non-2xx responses.
type Reply struct {
	Status   int
	Response protocol.Response
	Failure  *protocol.ErrorResponse
	Err      error
}

// Transport delivers action requests to the server.
//
// Send must not block on the round trip and must not invoke done before it
// returns: done acquires the client lock, which the caller of Send holds.
type Transport interface {
	Send(ctx context.Context, route string, req protocol.Request, done func(Reply))
}

// HTTPTransport posts requests to the action endpoint.
type HTTPTransport struct {
	// BaseURL is prepended to the island route, e.g. "http://localhost:8080".
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Header is added to every request.
	Header http.Header
}

// Send runs the round trip on its own goroutine.
func (t *HTTPTransport) Send(ctx context.Context, route string, req protocol.Request, done func(Reply)) {
	go func() {
		done(t.RoundTrip(ctx, route, req))
	}()
}

// RoundTrip performs a blocking request.
func (t *HTTPTransport) RoundTrip(ctx context.Context, route string, req protocol.Request) Reply {
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{Err: err}
	}
	url := strings.TrimSuffix(t.BaseURL, "/") + route
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{Err: err}
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(protocol.HeaderRequest, "true")

	hc := t.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return Reply{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{Status: resp.StatusCode, Err: err}
	}
	reply := Reply{Status: resp.StatusCode}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, &reply.Response); err != nil {
			reply.Err = fmt.Errorf("client: decode response: %w", err)
		}
		return reply
	}
	var failure protocol.ErrorResponse
	if err := json.Unmarshal(data, &failure); err != nil || failure.Error.Code == "" {
		failure.Error = protocol.ErrorBody{Code: protocol.CodeInternal, Message: http.StatusText(resp.StatusCode)}
	}
	reply.Failure = &failure
	return reply
}
