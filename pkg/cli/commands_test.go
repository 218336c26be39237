package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/dockman/pkg/infra/docker"
	"github.com/jguan/dockman/pkg/infra/docker/dockertest"
	"github.com/jguan/dockman/pkg/infra/store"
)

type cliResult struct {
	out    string
	errOut string
	err    error
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"DOCKMAN_HOST", "DOCKER_HOST", "DOCKER_CERT_PATH",
		"DOCKMAN_TLS_CA", "DOCKMAN_TLS_CERT", "DOCKMAN_TLS_KEY", "DOCKMAN_TLS_SKIP_VERIFY",
		"DOCKMAN_LOG_LEVEL", "DOCKMAN_LOG_FORMAT", "DOCKMAN_HISTORY", "DOCKMAN_HISTORY_PATH",
	} {
		t.Setenv(k, "")
	}
}

func runCLIContext(ctx context.Context, t *testing.T, host string, hist store.HistoryStore, args ...string) cliResult {
	t.Helper()
	root := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOutputWriter(out)
	root.SetErrorWriter(errOut)
	if hist != nil {
		root.SetHistory(hist)
	}
	root.SetArgs(append([]string{"--host", host}, args...))
	err := root.ExecuteContext(ctx)
	return cliResult{out: out.String(), errOut: errOut.String(), err: err}
}

func runCLI(t *testing.T, host string, hist store.HistoryStore, args ...string) cliResult {
	t.Helper()
	return runCLIContext(context.Background(), t, host, hist, args...)
}

func newFakeEngine(t *testing.T) *dockertest.Server {
	t.Helper()
	isolateEnv(t)
	return dockertest.NewServer(t)
}

func TestPs(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest", State: container.StateRunning,
		Ports: []container.Port{{PrivatePort: 80, PublicPort: 8080, Type: "tcp"}}})
	srv.Engine.AddContainer(dockertest.Container{Name: "old", Image: "redis:7", State: container.StateExited})

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "ps")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "CONTAINER ID")
	assert.Contains(t, res.out, "web1")
	assert.Contains(t, res.out, "80:8080")
	assert.NotContains(t, res.out, "redis:7")

	res = runCLI(t, srv.URL, store.NewMemoryStore(), "ps", "-a")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "redis:7")
}

func TestPs_JSON(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest", State: container.StateRunning})

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "ps", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"names"`)
	assert.Contains(t, res.out, `"nginx:latest"`)
}

func TestInvalidOutputFormat(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "ps", "-o", "xml")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "invalid output format")
}

func TestStopUnknownContainer(t *testing.T) {
	srv := newFakeEngine(t)
	hist := store.NewMemoryStore()

	res := runCLI(t, srv.URL, hist, "stop", "ghost")
	require.Error(t, res.err)
	assert.Equal(t, docker.KindEngine, docker.KindOf(res.err))
	assert.Equal(t, 404, docker.StatusCode(res.err))
	assert.Contains(t, res.errOut, "Error: EngineError: No such container: ghost")
	assert.Empty(t, res.out)

	entries, err := hist.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "container.stop", entries[0].Operation)
	assert.Equal(t, "ghost", entries[0].Target)
	assert.Equal(t, string(docker.KindEngine), entries[0].Outcome)
	assert.Equal(t, 404, entries[0].StatusCode)
	assert.Equal(t, "No such container: ghost", entries[0].Message)
}

func TestStartStopRemove(t *testing.T) {
	srv := newFakeEngine(t)
	c := srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest"})
	hist := store.NewMemoryStore()

	res := runCLI(t, srv.URL, hist, "start", "web1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Container web1 started")
	got, _ := srv.Engine.Container(c.ID)
	assert.Equal(t, container.StateRunning, got.State)

	res = runCLI(t, srv.URL, hist, "rm", "web1")
	require.Error(t, res.err)
	assert.Equal(t, 409, docker.StatusCode(res.err))

	res = runCLI(t, srv.URL, hist, "stop", "web1")
	require.NoError(t, res.err)

	res = runCLI(t, srv.URL, hist, "rm", "web1")
	require.NoError(t, res.err)
	_, ok := srv.Engine.Container(c.ID)
	assert.False(t, ok)

	entries, err := hist.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "container.remove", entries[0].Operation)
	assert.True(t, entries[0].Succeeded())
	assert.False(t, entries[2].Succeeded())
}

func TestCreate_RoundTrip(t *testing.T) {
	srv := newFakeEngine(t)
	hist := store.NewMemoryStore()

	res := runCLI(t, srv.URL, hist, "create",
		"--name", "web1", "--image", "nginx:latest", "-p", "8080:80", "-e", "FOO=bar", "--start")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "web1")

	req, ok := srv.Engine.LastCreate()
	require.True(t, ok)
	assert.Equal(t, "nginx:latest", req.Config.Image)
	assert.Equal(t, []string{"FOO=bar"}, req.Config.Env)
	require.NotNil(t, req.HostConfig)
	assert.Equal(t, []nat.PortBinding{{HostPort: "8080"}}, req.HostConfig.PortBindings[nat.Port("80/tcp")])

	c, ok := srv.Engine.Container("web1")
	require.True(t, ok)
	assert.Equal(t, container.StateRunning, c.State)

	entries, err := hist.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "container.start", entries[0].Operation)
	assert.Equal(t, "container.create", entries[1].Operation)
}

func TestCreate_EnvFile(t *testing.T) {
	srv := newFakeEngine(t)
	envFile := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(envFile, []byte("A=1\nNOEQUALS\nB=2\n"), 0o644))

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "create",
		"--name", "api", "--image", "api:1.4", "--env-file", envFile, "-e", "C=3")
	require.NoError(t, res.err)

	req, ok := srv.Engine.LastCreate()
	require.True(t, ok)
	assert.Equal(t, []string{"C=3", "A=1", "B=2"}, req.Config.Env)
	c, _ := srv.Engine.Container("api")
	assert.Equal(t, container.StateCreated, c.State)
}

func TestCreate_MissingImageIsValidationError(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "create", "--name", "web1")
	require.Error(t, res.err)
	assert.Equal(t, docker.KindValidation, docker.KindOf(res.err))
	assert.Contains(t, res.errOut, "Error: ValidationError: image is required")
	_, ok := srv.Engine.LastCreate()
	assert.False(t, ok)
}

func TestCreate_NameConflict(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest"})

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "create", "--name", "web1", "--image", "nginx:latest")
	require.Error(t, res.err)
	assert.Equal(t, 409, docker.StatusCode(res.err))
}

func TestLogs(t *testing.T) {
	srv := newFakeEngine(t)
	now := time.Now()
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest", Logs: []dockertest.LogEntry{
		{Stream: stdcopy.Stdout, Time: now.Add(-2 * time.Second), Text: "listening on :80"},
		{Stream: stdcopy.Stderr, Time: now.Add(-time.Second), Text: "warning: slow start"},
	}})

	res := runCLI(t, srv.URL, nil, "--no-history", "logs", "web1")
	require.NoError(t, res.err)
	assert.Equal(t, "listening on :80\n", res.out)
	assert.Contains(t, res.errOut, "warning: slow start")
}

func TestLogs_JSON(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest", Logs: []dockertest.LogEntry{
		{Stream: stdcopy.Stdout, Time: time.Now(), Text: "hello"},
	}})

	res := runCLI(t, srv.URL, nil, "--no-history", "-o", "json", "logs", "web1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"stream":"stdout"`)
	assert.Contains(t, res.out, `"text":"hello"`)
}

func TestLogs_FollowEndsCleanlyOnCancel(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest", State: container.StateRunning})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res := runCLIContext(ctx, t, srv.URL, nil, "--no-history", "logs", "-f", "web1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "tick 1")
}

func TestLogs_UnknownContainer(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, nil, "--no-history", "logs", "ghost")
	require.Error(t, res.err)
	assert.Equal(t, 404, docker.StatusCode(res.err))
}

func TestImages(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddImage(dockertest.Image{RepoTags: []string{"nginx:latest", "nginx:1.27"}, Size: 187_000_000, Created: 1700000000})
	srv.Engine.AddImage(dockertest.Image{Size: 1024})

	res := runCLI(t, srv.URL, nil, "--no-history", "images")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "SIZE (MB)")
	assert.Contains(t, res.out, "nginx:latest")
	assert.Contains(t, res.out, "nginx:1.27")
	assert.Contains(t, res.out, "178.3")
	assert.Contains(t, res.out, "<none>:<none>")
}

func TestPull(t *testing.T) {
	srv := newFakeEngine(t)
	hist := store.NewMemoryStore()

	res := runCLI(t, srv.URL, hist, "pull", "nginx:latest")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "a1: Pulling fs layer")
	assert.Contains(t, res.out, "a1: Pull complete")
	assert.Contains(t, res.out, "Status: Downloaded newer image for nginx:latest")
	assert.Len(t, srv.Engine.Images(), 1)

	entries, err := hist.List(context.Background(), store.Filter{Operation: "image.pull"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Succeeded())
}

func TestPull_ErrorRecord(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.SetPullScript("private/app:1", []jsonmessage.JSONMessage{
		{Status: "Pulling from private/app", ID: "1"},
		{Error: &jsonmessage.JSONError{Message: "pull access denied for private/app"}, ErrorMessage: "pull access denied for private/app"},
	})

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "pull", "private/app:1")
	require.Error(t, res.err)
	assert.Equal(t, docker.KindEngine, docker.KindOf(res.err))
	assert.Contains(t, res.errOut, "pull access denied")
	assert.Empty(t, srv.Engine.Images())
}

func TestRmi(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddImage(dockertest.Image{RepoTags: []string{"nginx:latest"}})
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest"})

	res := runCLI(t, srv.URL, store.NewMemoryStore(), "rmi", "nginx:latest")
	require.Error(t, res.err)
	assert.Equal(t, 409, docker.StatusCode(res.err))

	res = runCLI(t, srv.URL, store.NewMemoryStore(), "rmi", "-f", "nginx:latest")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Image nginx:latest removed")
	assert.Empty(t, srv.Engine.Images())
}

func TestInfo(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "a", State: container.StateRunning})
	srv.Engine.AddContainer(dockertest.Container{Name: "b", State: container.StateExited})

	res := runCLI(t, srv.URL, nil, "--no-history", "info")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Server Version:")
	assert.Contains(t, res.out, "28.5.2")
	assert.Contains(t, res.out, "8.00 GB")

	res = runCLI(t, srv.URL, nil, "--no-history", "-o", "yaml", "info")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "containers_running: 1")
}

func TestPing(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, nil, "--no-history", "ping")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Connected to "+srv.URL)
	assert.Contains(t, res.out, "engine 28.5.2")
}

func TestPing_ConnectionRefused(t *testing.T) {
	srv := newFakeEngine(t)
	url := srv.URL
	srv.Close()

	res := runCLI(t, url, nil, "--no-history", "ping")
	require.Error(t, res.err)
	assert.Equal(t, docker.KindConnectionUnavailable, docker.KindOf(res.err))
	assert.Contains(t, res.errOut, "Error: ConnectionUnavailable")
}

func TestPing_EngineFailure(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.Fail("GET /version", 500, "daemon is shutting down")

	res := runCLI(t, srv.URL, nil, "--no-history", "-o", "json", "ping")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, `"kind": "EngineError"`)
	assert.Contains(t, res.errOut, `"message": "daemon is shutting down"`)
}

func TestHistory_PersistsAcrossRuns(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest"})

	res := runCLI(t, srv.URL, nil, "start", "web1")
	require.NoError(t, res.err)
	res = runCLI(t, srv.URL, nil, "stop", "ghost")
	require.Error(t, res.err)

	res = runCLI(t, srv.URL, nil, "history")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "container.start")
	assert.Contains(t, res.out, "container.stop")
	assert.Contains(t, res.out, "EngineError")

	res = runCLI(t, srv.URL, nil, "history", "--operation", "container.start", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"target": "web1"`)
	assert.NotContains(t, res.out, "ghost")
}

func TestHistory_Disabled(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, nil, "--no-history", "history")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "history is disabled")
}

func TestDebugLogsEngineCallStats(t *testing.T) {
	srv := newFakeEngine(t)

	res := runCLI(t, srv.URL, nil, "--no-history", "--log-level", "debug", "stop", "ghost")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "engine calls")
	assert.Contains(t, res.errOut, "EngineError")
}

func TestTailValue(t *testing.T) {
	var v tailValue
	require.NoError(t, v.Set("25"))
	assert.Equal(t, tailValue(25), v)
	assert.Equal(t, "25", v.String())

	require.NoError(t, v.Set("ALL"))
	assert.Equal(t, tailValue(-1), v)
	assert.Equal(t, "all", v.String())

	require.NoError(t, v.Set("-7"))
	assert.Equal(t, tailValue(-1), v)

	assert.Error(t, v.Set("ten"))
}

func TestLogs_TailQuery(t *testing.T) {
	srv := newFakeEngine(t)
	srv.Engine.AddContainer(dockertest.Container{Name: "web1", Image: "nginx:latest"})

	res := runCLI(t, srv.URL, nil, "--no-history", "logs", "--tail", "all", "web1")
	require.NoError(t, res.err)

	reqs := srv.Engine.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[len(reqs)-1].Query, "tail=all")
}
