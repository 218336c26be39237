package dockertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
)

// Server serves an Engine over HTTP.
type Server struct {
	*httptest.Server
	Engine *Engine
}

// NewServer starts a fake engine and stops it when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{Engine: NewEngine()}
	s.Server = httptest.NewServer(s.Engine.Handler())
	t.Cleanup(s.Close)
	return s
}

// Handler returns the engine's API routes.
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, e.wrap(pattern, fn))
	}
	handle("GET /version", e.handleVersion)
	handle("GET /info", e.handleInfo)
	handle("GET /containers/json", e.handleContainerList)
	handle("POST /containers/create", e.handleContainerCreate)
	handle("POST /containers/{id}/start", e.handleContainerStart)
	handle("POST /containers/{id}/stop", e.handleContainerStop)
	handle("DELETE /containers/{id}", e.handleContainerRemove)
	handle("GET /containers/{id}/logs", e.handleContainerLogs)
	handle("GET /images/json", e.handleImageList)
	handle("POST /images/create", e.handleImagePull)
	handle("DELETE /images/{name...}", e.handleImageRemove)
	return mux
}

func (e *Engine) wrap(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		e.record(Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		if f, ok := e.failureFor(route); ok {
			writeError(w, f.status, f.message)
			return
		}
		fn(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (e *Engine) handleVersion(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	v := types.Version{Version: e.serverVersion, APIVersion: "1.51", Os: "linux", Arch: "amd64", GoVersion: "go1.24.9"}
	e.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

func (e *Engine) handleInfo(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	total, running, paused, stopped := e.countsLocked()
	info := system.Info{
		Containers:        total,
		ContainersRunning: running,
		ContainersPaused:  paused,
		ContainersStopped: stopped,
		Images:            len(e.images),
		ServerVersion:     e.serverVersion,
		OperatingSystem:   "Fake Linux",
		Architecture:      "x86_64",
		MemTotal:          e.memTotal,
	}
	e.mu.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func (e *Engine) handleContainerList(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	e.mu.Lock()
	out := make([]container.Summary, 0, len(e.containers))
	for _, c := range e.containers {
		if !all && c.State != container.StateRunning {
			continue
		}
		out = append(out, container.Summary{
			ID:      c.ID,
			Names:   []string{"/" + c.Name},
			Image:   c.Image,
			Created: c.Created,
			Ports:   c.Ports,
			State:   c.State,
			Status:  statusText(c.State),
		})
	}
	e.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func statusText(state string) string {
	switch state {
	case container.StateRunning:
		return "Up 2 minutes"
	case container.StateExited:
		return "Exited (0) 1 minute ago"
	case container.StateCreated:
		return "Created"
	}
	return state
}

func (e *Engine) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	var req container.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Config == nil || req.Image == "" {
		writeError(w, http.StatusBadRequest, "config cannot be empty in order to create a container")
		return
	}
	name := r.URL.Query().Get("name")

	e.mu.Lock()
	e.lastCreate = &req
	if name != "" && e.findContainerLocked(name) != nil {
		e.mu.Unlock()
		writeError(w, http.StatusConflict, fmt.Sprintf("Conflict. The container name \"/%s\" is already in use", name))
		return
	}
	e.mu.Unlock()

	var ports []container.Port
	if req.HostConfig != nil {
		for port, bindings := range req.HostConfig.PortBindings {
			for _, b := range bindings {
				public, _ := strconv.ParseUint(b.HostPort, 10, 16)
				ports = append(ports, container.Port{
					IP:          "0.0.0.0",
					PrivatePort: uint16(port.Int()),
					PublicPort:  uint16(public),
					Type:        port.Proto(),
				})
			}
		}
	}
	c := e.AddContainer(Container{Name: name, Image: req.Image, Env: req.Env, Ports: ports})
	writeJSON(w, http.StatusCreated, container.CreateResponse{ID: c.ID, Warnings: []string{}})
}

func (e *Engine) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	e.transition(w, r.PathValue("id"), container.StateRunning)
}

func (e *Engine) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	e.transition(w, r.PathValue("id"), container.StateExited)
}

// transition answers 204 on a state change and 304 when the container is
// already in the target state, as the real engine does.
func (e *Engine) transition(w http.ResponseWriter, ref, target string) {
	e.mu.Lock()
	c := e.findContainerLocked(ref)
	if c == nil {
		e.mu.Unlock()
		writeError(w, http.StatusNotFound, "No such container: "+ref)
		return
	}
	if c.State == target || (target == container.StateExited && c.State != container.StateRunning) {
		e.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}
	c.State = target
	e.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (e *Engine) handleContainerRemove(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.findContainerLocked(ref)
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: "+ref)
		return
	}
	if c.State == container.StateRunning && !force {
		writeError(w, http.StatusConflict, fmt.Sprintf(
			"cannot remove container \"/%s\": container is running: stop the container before removing or force remove", c.Name))
		return
	}
	e.removeContainerLocked(c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (e *Engine) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")
	q := r.URL.Query()
	follow, _ := strconv.ParseBool(q.Get("follow"))
	timestamps, _ := strconv.ParseBool(q.Get("timestamps"))

	e.mu.Lock()
	c := e.findContainerLocked(ref)
	if c == nil {
		e.mu.Unlock()
		writeError(w, http.StatusNotFound, "No such container: "+ref)
		return
	}
	entries := sortedTail(c.Logs, q.Get("tail"))
	tty := c.TTY
	interval := e.followInterval
	e.mu.Unlock()

	contentType := types.MediaTypeMultiplexedStream
	if tty {
		contentType = types.MediaTypeRawStream
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	fw := &flushWriter{w: w}

	writeEntry := func(entry LogEntry) error {
		line := entry.Text + "\n"
		if timestamps && entry.Stream != stdcopy.Systemerr {
			line = entry.Time.UTC().Format(jsonmessage.RFC3339NanoFixed) + " " + line
		}
		if tty {
			_, err := io.WriteString(fw, line)
			return err
		}
		_, err := stdcopy.NewStdWriter(fw, entry.Stream).Write([]byte(line))
		return err
	}

	for _, entry := range entries {
		if err := writeEntry(entry); err != nil {
			return
		}
	}
	if !follow {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-r.Context().Done():
			return
		case now := <-ticker.C:
			if err := writeEntry(LogEntry{Stream: stdcopy.Stdout, Time: now, Text: fmt.Sprintf("tick %d", n)}); err != nil {
				return
			}
		}
	}
}

func (e *Engine) handleImageList(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	out := make([]image.Summary, 0, len(e.images))
	for _, img := range e.images {
		out = append(out, image.Summary{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
			Created:  img.Created,
		})
	}
	e.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (e *Engine) handleImagePull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := q.Get("fromImage")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "fromImage is required")
		return
	}
	if tag := q.Get("tag"); strings.HasPrefix(tag, "sha256:") {
		ref += "@" + tag
	} else if tag != "" {
		ref += ":" + tag
	}

	e.mu.Lock()
	script, ok := e.pulls[ref]
	interval := e.pullInterval
	e.mu.Unlock()
	if !ok {
		script = defaultPullScript(ref)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fw := &flushWriter{w: w}
	enc := json.NewEncoder(fw)
	for _, msg := range script {
		if err := enc.Encode(msg); err != nil {
			return
		}
		if interval > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(interval):
			}
		}
	}

	if !pullFailed(script) {
		e.mu.Lock()
		if e.findImageLocked(ref) == nil {
			e.mu.Unlock()
			e.AddImage(Image{RepoTags: []string{withTag(ref)}, Size: 187_000_000, Created: time.Now().Unix()})
			return
		}
		e.mu.Unlock()
	}
}

func withTag(ref string) string {
	if strings.LastIndex(ref, ":") > strings.LastIndex(ref, "/") {
		return ref
	}
	return ref + ":latest"
}

func (e *Engine) handleImageRemove(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("name")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	e.mu.Lock()
	defer e.mu.Unlock()
	img := e.findImageLocked(ref)
	if img == nil {
		writeError(w, http.StatusNotFound, "No such image: "+ref)
		return
	}
	if e.imageInUseLocked(img) && !force {
		writeError(w, http.StatusConflict, fmt.Sprintf(
			"conflict: unable to remove repository reference %q - container is using its referenced image", ref))
		return
	}
	e.removeImageLocked(img.ID)
	resp := make([]image.DeleteResponse, 0, len(img.RepoTags)+1)
	for _, tag := range img.RepoTags {
		resp = append(resp, image.DeleteResponse{Untagged: tag})
	}
	resp = append(resp, image.DeleteResponse{Deleted: img.ID})
	writeJSON(w, http.StatusOK, resp)
}

// flushWriter pushes every write to the client so streams are observed
// record by record.
type flushWriter struct {
	w http.ResponseWriter
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
