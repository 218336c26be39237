// Package dockertest provides an in-memory container engine served over
// httptest for exercising the client against the real wire format.
package dockertest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// Container is a fake container.
type Container struct {
	ID      string
	Name    string
	Image   string
	State   string
	Env     []string
	Ports   []container.Port
	Created int64
	// TTY containers serve their logs as a raw stream.
	TTY  bool
	Logs []LogEntry
}

// LogEntry is one line of fake container output. Stream stdcopy.Systemerr
// makes the engine emit a daemon error frame.
type LogEntry struct {
	Stream stdcopy.StdType
	Time   time.Time
	Text   string
}

// Image is a fake image.
type Image struct {
	ID       string
	RepoTags []string
	Size     int64
	Created  int64
}

// Request is a recorded inbound API call.
type Request struct {
	Method string
	Path   string
	Query  string
	Header map[string][]string
	Body   []byte
}

type failure struct {
	status  int
	message string
}

// Engine holds the fake state. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	containers []*Container
	images     []*Image
	pulls      map[string][]jsonmessage.JSONMessage
	failures   map[string]failure
	requests   []Request
	lastCreate *container.CreateRequest

	serverVersion  string
	followInterval time.Duration
	pullInterval   time.Duration
	memTotal       int64
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		pulls:          make(map[string][]jsonmessage.JSONMessage),
		failures:       make(map[string]failure),
		serverVersion:  "28.5.2",
		followInterval: 20 * time.Millisecond,
		memTotal:       8 << 30,
	}
}

// SetServerVersion changes the version reported by /version and /info.
func (e *Engine) SetServerVersion(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serverVersion = v
}

// SetFollowInterval paces the synthetic lines written in follow mode.
func (e *Engine) SetFollowInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.followInterval = d
}

// SetPullInterval pauses between pull progress records.
func (e *Engine) SetPullInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pullInterval = d
}

// NewID returns a 64 character hex id.
func NewID() string {
	a, b := uuid.New(), uuid.New()
	return strings.ReplaceAll(a.String()+b.String(), "-", "")
}

// AddContainer stores c, filling in an id and state when missing.
func (e *Engine) AddContainer(c Container) Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.State == "" {
		c.State = container.StateCreated
	}
	if c.Created == 0 {
		c.Created = time.Now().Unix()
	}
	cp := c
	e.containers = append(e.containers, &cp)
	return cp
}

// AddImage stores img, filling in an id when missing.
func (e *Engine) AddImage(img Image) Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	if img.ID == "" {
		img.ID = "sha256:" + NewID()
	}
	cp := img
	e.images = append(e.images, &cp)
	return cp
}

// SetPullScript fixes the progress records served when ref is pulled. A ref
// without a tag stands for ref:latest. A script without an error record adds
// ref to the image list.
func (e *Engine) SetPullScript(ref string, msgs []jsonmessage.JSONMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulls[withTag(ref)] = msgs
}

// Fail makes the route (a mux pattern such as "GET /info") answer with
// status and a JSON {"message": message} body.
func (e *Engine) Fail(route string, status int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[route] = failure{status: status, message: message}
}

// Requests returns every call received so far.
func (e *Engine) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.requests...)
}

// LastCreate returns the body of the most recent create call.
func (e *Engine) LastCreate() (container.CreateRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastCreate == nil {
		return container.CreateRequest{}, false
	}
	return *e.lastCreate, true
}

// Container looks a container up by id, id prefix or name.
func (e *Engine) Container(ref string) (Container, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.findContainerLocked(ref)
	if c == nil {
		return Container{}, false
	}
	return *c, true
}

// Images returns a snapshot of the stored images.
func (e *Engine) Images() []Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Image, 0, len(e.images))
	for _, img := range e.images {
		out = append(out, *img)
	}
	return out
}

func (e *Engine) record(r Request) {
	e.mu.Lock()
	e.requests = append(e.requests, r)
	e.mu.Unlock()
}

func (e *Engine) failureFor(route string) (failure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.failures[route]
	return f, ok
}

func (e *Engine) findContainerLocked(ref string) *Container {
	ref = strings.TrimPrefix(ref, "/")
	for _, c := range e.containers {
		if c.ID == ref || c.Name == ref {
			return c
		}
	}
	if len(ref) >= 4 {
		for _, c := range e.containers {
			if strings.HasPrefix(c.ID, ref) {
				return c
			}
		}
	}
	return nil
}

func (e *Engine) removeContainerLocked(id string) {
	for i, c := range e.containers {
		if c.ID == id {
			e.containers = append(e.containers[:i], e.containers[i+1:]...)
			return
		}
	}
}

func (e *Engine) findImageLocked(ref string) *Image {
	for _, img := range e.images {
		if img.ID == ref || strings.TrimPrefix(img.ID, "sha256:") == ref {
			return img
		}
		for _, tag := range img.RepoTags {
			if tag == ref || tag == ref+":latest" {
				return img
			}
		}
	}
	if len(ref) >= 4 {
		for _, img := range e.images {
			if strings.HasPrefix(strings.TrimPrefix(img.ID, "sha256:"), ref) {
				return img
			}
		}
	}
	return nil
}

func (e *Engine) imageInUseLocked(img *Image) bool {
	for _, c := range e.containers {
		if c.Image == img.ID {
			return true
		}
		for _, tag := range img.RepoTags {
			if c.Image == tag {
				return true
			}
		}
	}
	return false
}

func (e *Engine) removeImageLocked(id string) {
	for i, img := range e.images {
		if img.ID == id {
			e.images = append(e.images[:i], e.images[i+1:]...)
			return
		}
	}
}

// defaultPullScript mimics a two layer pull, including a duplicated and an
// out-of-order progress record.
func defaultPullScript(ref string) []jsonmessage.JSONMessage {
	tag := "latest"
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		tag = ref[i+1:]
	}
	progress := func(cur, total int64) *jsonmessage.JSONProgress {
		return &jsonmessage.JSONProgress{Current: cur, Total: total}
	}
	return []jsonmessage.JSONMessage{
		{Status: "Pulling from library/" + strings.TrimSuffix(ref, ":"+tag), ID: tag},
		{Status: "Pulling fs layer", ID: "a1"},
		{Status: "Pulling fs layer", ID: "b2"},
		{Status: "Downloading", ID: "a1", Progress: progress(512, 2048)},
		{Status: "Downloading", ID: "b2", Progress: progress(100, 1000)},
		{Status: "Downloading", ID: "a1", Progress: progress(2048, 2048)},
		{Status: "Downloading", ID: "a1", Progress: progress(1024, 2048)},
		{Status: "Download complete", ID: "b2"},
		{Status: "Pull complete", ID: "a1"},
		{Status: "Pull complete", ID: "b2"},
		{Status: "Digest: sha256:" + NewID()},
		{Status: fmt.Sprintf("Status: Downloaded newer image for %s", ref)},
	}
}

func pullFailed(msgs []jsonmessage.JSONMessage) bool {
	for _, m := range msgs {
		if m.Error != nil || m.ErrorMessage != "" {
			return true
		}
	}
	return false
}

func (e *Engine) countsLocked() (total, running, paused, stopped int) {
	for _, c := range e.containers {
		total++
		switch c.State {
		case container.StateRunning:
			running++
		case container.StatePaused:
			paused++
		default:
			stopped++
		}
	}
	return
}

func sortedTail(entries []LogEntry, tail string) []LogEntry {
	out := append([]LogEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if tail == "" || tail == "all" {
		return out
	}
	var n int
	if _, err := fmt.Sscanf(tail, "%d", &n); err != nil || n < 0 || n >= len(out) {
		return out
	}
	return out[len(out)-n:]
}
