package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jguan/dockman/pkg/infra/logger"
	"github.com/jguan/dockman/pkg/infra/metrics"
)

const (
	DefaultQueryTimeout   = 10 * time.Second
	DefaultMutateTimeout  = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second

	// maxErrorBody caps how much of a failed streaming response is kept.
	maxErrorBody = 64 << 10
)

// Timeouts are the per-call budgets. Query covers GET and DELETE, Mutate
// covers POST. Connect bounds dialing and the TLS handshake, and is the only
// limit applied to streaming calls.
type Timeouts struct {
	Query   time.Duration
	Mutate  time.Duration
	Connect time.Duration
}

// DefaultTimeouts returns the built-in budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Query:   DefaultQueryTimeout,
		Mutate:  DefaultMutateTimeout,
		Connect: DefaultConnectTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Query <= 0 {
		t.Query = d.Query
	}
	if t.Mutate <= 0 {
		t.Mutate = d.Mutate
	}
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	return t
}

func (t Timeouts) forMethod(method string) time.Duration {
	if method == http.MethodPost {
		return t.Mutate
	}
	return t.Query
}

// Response is a fully read engine reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	op string
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Kind: KindUnknown, Op: r.op, Detail: fmt.Sprintf("decode response: %v", err), Cause: err}
	}
	return nil
}

// Transport executes single requests against one endpoint. Copies share
// the HTTP client and the call counters.
type Transport struct {
	endpoint Endpoint
	client   *http.Client
	timeouts Timeouts
	metrics  *metrics.RequestMetrics
}

// NewTransport builds a transport. A nil httpClient gets one dialing with
// the connect timeout and the endpoint's TLS configuration.
func NewTransport(ep Endpoint, timeouts Timeouts, httpClient *http.Client) Transport {
	timeouts = timeouts.withDefaults()
	if httpClient == nil {
		httpClient = newHTTPClient(ep, timeouts.Connect)
	}
	return Transport{endpoint: ep, client: httpClient, timeouts: timeouts, metrics: metrics.NewRequestMetrics()}
}

func newHTTPClient(ep Endpoint, connect time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	return &http.Client{
		// No client-wide Timeout: budgets are per call and streams have none.
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSClientConfig:     ep.TLS(),
			TLSHandshakeTimeout: connect,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Endpoint returns the target this transport talks to.
func (t Transport) Endpoint() Endpoint { return t.endpoint }

// Timeouts returns the effective budgets.
func (t Transport) Timeouts() Timeouts { return t.timeouts }

// Metrics returns the counters of calls made so far.
func (t Transport) Metrics() metrics.RequestSnapshot {
	if t.metrics == nil {
		return metrics.RequestSnapshot{}
	}
	return t.metrics.Snapshot()
}

func (t Transport) observe(start time.Time, err error) {
	if t.metrics == nil {
		return
	}
	t.metrics.Record(time.Since(start), string(KindOf(err)))
}

// Execute performs one request and reads the whole reply. A zero timeout
// selects the default for the method. Any 2xx status is success; anything
// else is a KindEngine error carrying the body verbatim.
func (t Transport) Execute(ctx context.Context, method, path string, body any, timeout time.Duration) (*Response, error) {
	op := operationName(ctx, method, path)
	if !allowedMethod(method) {
		return nil, validationError(op, "unsupported method %q", method)
	}
	if timeout <= 0 {
		timeout = t.timeouts.forMethod(method)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, req, err := t.newRequest(ctx, op, method, path, body)
	if err != nil {
		return nil, err
	}
	log := logger.ForCall(ctx)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		cerr := Classify(op, err)
		t.observe(start, cerr)
		log.Warn("engine request failed", "method", method, "path", path, "error", cerr)
		return nil, cerr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		cerr := Classify(op, err)
		t.observe(start, cerr)
		log.Warn("engine response read failed", "method", method, "path", path, "error", cerr)
		return nil, cerr
	}

	log.Debug("engine request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !isSuccess(resp.StatusCode) {
		eerr := engineError(op, resp.StatusCode, data)
		t.observe(start, eerr)
		return nil, eerr
	}
	t.observe(start, nil)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data, op: op}, nil
}

// Open starts a streaming request and returns the response with its body
// unread. Only the connect timeout applies; ctx cancellation tears the
// connection down. The caller owns resp.Body.
func (t Transport) Open(ctx context.Context, method, path string, body any) (*http.Response, error) {
	op := operationName(ctx, method, path)
	if !allowedMethod(method) {
		return nil, validationError(op, "unsupported method %q", method)
	}

	ctx, req, err := t.newRequest(ctx, op, method, path, body)
	if err != nil {
		return nil, err
	}
	log := logger.ForCall(ctx)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		cerr := Classify(op, err)
		t.observe(start, cerr)
		log.Warn("engine stream open failed", "method", method, "path", path, "error", cerr)
		return nil, cerr
	}
	log.Debug("engine stream opened", "method", method, "path", path, "status", resp.StatusCode)

	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		eerr := engineError(op, resp.StatusCode, data)
		t.observe(start, eerr)
		return nil, eerr
	}
	t.observe(start, nil)
	return resp, nil
}

func (t Transport) newRequest(ctx context.Context, op, method, path string, body any) (context.Context, *http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return ctx, nil, &Error{Kind: KindUnknown, Op: op, Detail: fmt.Sprintf("encode request: %v", err), Cause: err}
		}
		reader = bytes.NewReader(buf)
	}

	rid := logger.RequestID(ctx)
	if rid == "" {
		rid = uuid.NewString()
		ctx = logger.WithRequestID(ctx, rid)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.endpoint.URL()+path, reader)
	if err != nil {
		return ctx, nil, validationError(op, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", rid)
	return ctx, req, nil
}

func operationName(ctx context.Context, method, path string) string {
	if op := logger.Operation(ctx); op != "" {
		return op
	}
	return method + " " + path
}

func allowedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
		return true
	}
	return false
}

// isSuccess accepts any 2xx. The engine answers create with 201 and
// start, stop and delete with 204.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
