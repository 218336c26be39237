// Package domain holds the typed records dockman works with once an engine
// response has left the transport. Every mapper in this package is total:
// missing wire fields turn into documented defaults, never into errors.
package domain

import (
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
)

const (
	// UnnamedContainer is shown for containers whose name list is empty.
	UnnamedContainer = "unnamed"
	// Unknown is the display default for absent string fields.
	Unknown = "unknown"
)

// Container is one entry of a container listing.
type Container struct {
	ID     string        `json:"id" yaml:"id"`
	Names  []string      `json:"names" yaml:"names"`
	Image  string        `json:"image" yaml:"image"`
	Status string        `json:"status" yaml:"status"`
	State  string        `json:"state" yaml:"state"`
	Ports  []PortBinding `json:"ports" yaml:"ports"`
}

// PortBinding is a container port and, when published, its host side.
type PortBinding struct {
	IP          string `json:"ip,omitempty" yaml:"ip,omitempty"`
	PrivatePort uint16 `json:"private_port" yaml:"private_port"`
	PublicPort  uint16 `json:"public_port,omitempty" yaml:"public_port,omitempty"`
	Protocol    string `json:"protocol" yaml:"protocol"`
}

// Published reports whether the port is bound on the host.
func (p PortBinding) Published() bool {
	return p.PublicPort != 0
}

// DisplayName returns the first name with the engine's leading "/" removed.
func (c Container) DisplayName() string {
	name := UnnamedContainer
	if len(c.Names) > 0 {
		name = c.Names[0]
	}
	return strings.TrimPrefix(name, "/")
}

// ShortID returns the 12 character form of the container id.
func (c Container) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// PublishedPorts renders published ports as "private:public" pairs.
func (c Container) PublishedPorts() string {
	var parts []string
	for _, p := range c.Ports {
		if !p.Published() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%d", p.PrivatePort, p.PublicPort))
	}
	return strings.Join(parts, ", ")
}

// FromContainerSummary maps a /containers/json entry.
func FromContainerSummary(s container.Summary) Container {
	c := Container{
		ID:     s.ID,
		Names:  append([]string(nil), s.Names...),
		Image:  orUnknown(s.Image),
		Status: orUnknown(s.Status),
		State:  s.State,
		Ports:  make([]PortBinding, 0, len(s.Ports)),
	}
	for _, p := range s.Ports {
		proto := p.Type
		if proto == "" {
			proto = "tcp"
		}
		c.Ports = append(c.Ports, PortBinding{
			IP:          p.IP,
			PrivatePort: p.PrivatePort,
			PublicPort:  p.PublicPort,
			Protocol:    proto,
		})
	}
	return c
}

// FromContainerSummaries maps a whole listing, preserving engine order.
func FromContainerSummaries(list []container.Summary) []Container {
	out := make([]Container, 0, len(list))
	for _, s := range list {
		out = append(out, FromContainerSummary(s))
	}
	return out
}

// CreatedContainer is the engine's answer to a create request.
type CreatedContainer struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FromCreateResponse maps a create response for the container called name.
func FromCreateResponse(name string, r container.CreateResponse) CreatedContainer {
	return CreatedContainer{
		ID:       r.ID,
		Name:     name,
		Warnings: append([]string(nil), r.Warnings...),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
