package docker

import (
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// CreateSpec is the operator's input for a new container. PortMapping is a
// single "host:container" pair and Env holds newline separated KEY=VALUE
// lines.
type CreateSpec struct {
	Name        string
	Image       string
	PortMapping string
	Env         string
}

// BuildCreateRequest assembles the engine's create body. A port mapping
// without a colon is left out and env lines without "=" are dropped; neither
// is an error.
func BuildCreateRequest(spec CreateSpec) container.CreateRequest {
	cfg := &container.Config{
		Image: strings.TrimSpace(spec.Image),
		Env:   parseEnv(spec.Env),
	}
	req := container.CreateRequest{Config: cfg}

	if port, binding, ok := parsePortMapping(spec.PortMapping); ok {
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		req.HostConfig = &container.HostConfig{
			PortBindings: nat.PortMap{port: []nat.PortBinding{binding}},
		}
	}
	return req
}

// parsePortMapping splits "host:container" on the first colon. The
// container side is always bound as tcp.
func parsePortMapping(mapping string) (nat.Port, nat.PortBinding, bool) {
	host, ctr, ok := strings.Cut(strings.TrimSpace(mapping), ":")
	ctr = strings.TrimSpace(ctr)
	if !ok || ctr == "" {
		return "", nat.PortBinding{}, false
	}
	return nat.Port(ctr + "/tcp"), nat.PortBinding{HostPort: strings.TrimSpace(host)}, true
}

func parseEnv(text string) []string {
	var env []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "=") {
			continue
		}
		env = append(env, line)
	}
	return env
}

// EnvText joins KEY=VALUE pairs into the newline form CreateSpec expects.
func EnvText(pairs []string) string {
	return strings.Join(pairs, "\n")
}
