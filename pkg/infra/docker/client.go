package docker

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/system"

	"github.com/jguan/dockman/pkg/domain"
	"github.com/jguan/dockman/pkg/infra/logger"
	"github.com/jguan/dockman/pkg/infra/metrics"
)

// Engine is the set of operations dockman performs against a container
// engine. Every method returns a typed result or a classified *Error.
type Engine interface {
	// Version probes connectivity and reports the engine version.
	Version(ctx context.Context) (domain.EngineVersion, error)

	// Info returns the engine's system summary.
	Info(ctx context.Context) (domain.SystemInfo, error)

	// ListContainers lists running containers, or all of them when all is set.
	ListContainers(ctx context.Context, all bool) ([]domain.Container, error)

	// StartContainer starts a container by id or name.
	StartContainer(ctx context.Context, id string) error

	// StopContainer stops a container by id or name.
	StopContainer(ctx context.Context, id string) error

	// RemoveContainer deletes a container; force kills it first if running.
	RemoveContainer(ctx context.Context, id string, force bool) error

	// CreateContainer creates (but does not start) a container.
	CreateContainer(ctx context.Context, spec CreateSpec) (domain.CreatedContainer, error)

	// ContainerLogs opens a log stream. The caller must Close it.
	ContainerLogs(ctx context.Context, id string, opts LogOptions) (*LogOperation, error)

	// ListImages lists local images.
	ListImages(ctx context.Context) ([]domain.Image, error)

	// PullImage opens a pull progress stream. The caller must Close it.
	PullImage(ctx context.Context, ref string) (*PullOperation, error)

	// RemoveImage deletes an image by id or reference.
	RemoveImage(ctx context.Context, id string, force bool) error
}

// Compile-time assertion: Client must implement Engine.
var _ Engine = Client{}

// Client talks to one engine endpoint. It is a small value that can be
// copied and used from many goroutines; it never retries.
type Client struct {
	transport Transport
}

type options struct {
	timeouts   Timeouts
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*options)

// WithTimeouts overrides the per-call budgets. Zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New returns a client for ep. A zero Endpoint targets DefaultHost.
func New(ep Endpoint, opts ...Option) Client {
	o := options{timeouts: DefaultTimeouts()}
	for _, opt := range opts {
		opt(&o)
	}
	if ep.isZero() {
		ep = MustParseEndpoint(DefaultHost)
	}
	return Client{transport: NewTransport(ep, o.timeouts, o.httpClient)}
}

// NewFromHost parses host and returns a client for it.
func NewFromHost(host string, tlsOpts TLSOptions, opts ...Option) (Client, error) {
	ep, err := ParseEndpoint(host, tlsOpts)
	if err != nil {
		return Client{}, err
	}
	return New(ep, opts...), nil
}

// Endpoint returns the engine this client targets.
func (c Client) Endpoint() Endpoint { return c.transport.Endpoint() }

// Transport exposes the underlying request executor.
func (c Client) Transport() Transport { return c.transport }

// Metrics returns counters for the calls made through c and its copies.
func (c Client) Metrics() metrics.RequestSnapshot { return c.transport.Metrics() }

func (c Client) Version(ctx context.Context) (domain.EngineVersion, error) {
	ctx = logger.WithOperation(ctx, "system.version")
	var v types.Version
	if err := c.get(ctx, "/version", &v); err != nil {
		return domain.EngineVersion{}, err
	}
	return domain.FromVersion(v), nil
}

func (c Client) Info(ctx context.Context) (domain.SystemInfo, error) {
	ctx = logger.WithOperation(ctx, "system.info")
	var info system.Info
	if err := c.get(ctx, "/info", &info); err != nil {
		return domain.SystemInfo{}, err
	}
	return domain.FromSystemInfo(info), nil
}

func (c Client) ListContainers(ctx context.Context, all bool) ([]domain.Container, error) {
	ctx = logger.WithOperation(ctx, "container.list")
	q := url.Values{}
	if all {
		q.Set("all", "true")
	}
	var list []container.Summary
	if err := c.get(ctx, withQuery("/containers/json", q), &list); err != nil {
		return nil, err
	}
	return domain.FromContainerSummaries(list), nil
}

func (c Client) StartContainer(ctx context.Context, id string) error {
	return c.containerAction(ctx, "container.start", id, "start")
}

func (c Client) StopContainer(ctx context.Context, id string) error {
	return c.containerAction(ctx, "container.stop", id, "stop")
}

func (c Client) containerAction(ctx context.Context, op, id, action string) error {
	if err := required(op, "container id", id); err != nil {
		return err
	}
	ctx = logger.WithOperation(ctx, op)
	_, err := c.transport.Execute(ctx, http.MethodPost, "/containers/"+url.PathEscape(strings.TrimSpace(id))+"/"+action, nil, 0)
	return err
}

func (c Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	const op = "container.remove"
	if err := required(op, "container id", id); err != nil {
		return err
	}
	ctx = logger.WithOperation(ctx, op)
	_, err := c.transport.Execute(ctx, http.MethodDelete, withQuery("/containers/"+url.PathEscape(strings.TrimSpace(id)), forceQuery(force)), nil, 0)
	return err
}

func (c Client) CreateContainer(ctx context.Context, spec CreateSpec) (domain.CreatedContainer, error) {
	const op = "container.create"
	if err := required(op, "container name", spec.Name); err != nil {
		return domain.CreatedContainer{}, err
	}
	if err := required(op, "image", spec.Image); err != nil {
		return domain.CreatedContainer{}, err
	}
	ctx = logger.WithOperation(ctx, op)

	name := strings.TrimSpace(spec.Name)
	q := url.Values{}
	q.Set("name", name)
	resp, err := c.transport.Execute(ctx, http.MethodPost, withQuery("/containers/create", q), BuildCreateRequest(spec), 0)
	if err != nil {
		return domain.CreatedContainer{}, err
	}
	var created container.CreateResponse
	if err := resp.Decode(&created); err != nil {
		return domain.CreatedContainer{}, err
	}
	return domain.FromCreateResponse(name, created), nil
}

func (c Client) ContainerLogs(ctx context.Context, id string, opts LogOptions) (*LogOperation, error) {
	const op = "container.logs"
	if err := required(op, "container id", id); err != nil {
		return nil, err
	}
	ctx = logger.WithOperation(ctx, op)

	q := url.Values{}
	q.Set("stdout", "true")
	q.Set("stderr", "true")
	q.Set("tail", opts.tailParam())
	q.Set("timestamps", "true")
	if opts.Follow {
		q.Set("follow", "true")
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.transport.Open(ctx, http.MethodGet, withQuery("/containers/"+url.PathEscape(strings.TrimSpace(id))+"/logs", q), nil)
	if err != nil {
		cancel()
		return nil, err
	}

	l := newLogOperation(op, id)
	l.begin(ctx, cancel, resp.Body)
	l.start(resp.Body, resp.Header.Get("Content-Type"))
	return l, nil
}

func (c Client) ListImages(ctx context.Context) ([]domain.Image, error) {
	ctx = logger.WithOperation(ctx, "image.list")
	var list []image.Summary
	if err := c.get(ctx, "/images/json", &list); err != nil {
		return nil, err
	}
	return domain.FromImageSummaries(list), nil
}

func (c Client) PullImage(ctx context.Context, ref string) (*PullOperation, error) {
	const op = "image.pull"
	if err := required(op, "image reference", ref); err != nil {
		return nil, err
	}
	ctx = logger.WithOperation(ctx, op)

	q, ref, err := pullQuery(op, ref)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.transport.Open(ctx, http.MethodPost, withQuery("/images/create", q), nil)
	if err != nil {
		cancel()
		return nil, err
	}

	p := newPullOperation(op, ref)
	p.attach(resp.StatusCode, resp.Body)
	p.begin(ctx, cancel, resp.Body)
	return p, nil
}

// pullQuery normalizes ref and splits it into the fromImage and tag
// parameters. A reference without a tag or digest pulls :latest; the engine
// would otherwise pull every tag of the repository.
func pullQuery(op, ref string) (url.Values, string, error) {
	named, err := reference.ParseNormalizedNamed(strings.TrimSpace(ref))
	if err != nil {
		return nil, "", validationError(op, "invalid image reference %q: %v", ref, err)
	}
	named = reference.TagNameOnly(named)

	q := url.Values{}
	q.Set("fromImage", reference.FamiliarName(named))
	switch r := named.(type) {
	case reference.Digested:
		q.Set("tag", r.Digest().String())
	case reference.Tagged:
		q.Set("tag", r.Tag())
	}
	return q, reference.FamiliarString(named), nil
}

func (c Client) RemoveImage(ctx context.Context, id string, force bool) error {
	const op = "image.remove"
	if err := required(op, "image id", id); err != nil {
		return err
	}
	ctx = logger.WithOperation(ctx, op)
	_, err := c.transport.Execute(ctx, http.MethodDelete, withQuery("/images/"+escapeRef(id), forceQuery(force)), nil, 0)
	return err
}

func (c Client) get(ctx context.Context, path string, v any) error {
	resp, err := c.transport.Execute(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

func required(op, what, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationError(op, "%s is required", what)
	}
	return nil
}

func forceQuery(force bool) url.Values {
	q := url.Values{}
	if force {
		q.Set("force", "true")
	}
	return q
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// escapeRef escapes each segment of an image reference, keeping the
// registry and repository separators intact.
func escapeRef(ref string) string {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
