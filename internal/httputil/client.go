// Package httputil provides the HTTP client seam used by the fitness API
// client, plus small JSON response helpers for the viewer.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient is the part of *http.Client the API clients need.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, or a client with a 60s timeout when c is nil.
// FIT downloads for long rides can take a while on slow links.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: 60 * time.Second}
	}
	return &StandardClient{Client: c}
}

type cannedResponse struct {
	status int
	body   string
	err    error
}

func (c cannedResponse) build(req *http.Request) (*http.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{
		StatusCode: c.status,
		Status:     http.StatusText(c.status),
		Body:       io.NopCloser(strings.NewReader(c.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// MockHTTPClient answers requests from canned responses and records every
// request it sees. Routes match on URL path suffix and answer every time;
// requests no route matches consume the FIFO queue, and a drained queue
// answers 200 with an empty body.
type MockHTTPClient struct {
	mu       sync.Mutex
	routes   []route
	queue    []cannedResponse
	requests []*http.Request
}

type route struct {
	suffix string
	resp   cannedResponse
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, cannedResponse{status: status, body: body})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, cannedResponse{err: err})
	return m
}

// Route answers every request whose path ends in suffix. Earlier routes win.
func (m *MockHTTPClient) Route(suffix string, status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{suffix: suffix, resp: cannedResponse{status: status, body: body}})
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	for _, r := range m.routes {
		if strings.HasSuffix(req.URL.Path, r.suffix) {
			return r.resp.build(req)
		}
	}
	if len(m.queue) == 0 {
		return cannedResponse{status: http.StatusOK}.build(req)
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next.build(req)
}

// GetRequest returns the nth recorded request, or nil.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
