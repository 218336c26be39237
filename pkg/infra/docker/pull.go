package docker

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/docker/docker/pkg/jsonmessage"
)

// PullEvent is one progress record of an image pull. ID is the layer id and
// is empty for image-wide status lines.
type PullEvent struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
}

// LayerProgress is the latest known state of one layer.
type LayerProgress struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
}

// Percent is the completed fraction in [0, 100], 0 when the size is unknown.
func (l LayerProgress) Percent() float64 {
	if l.Total <= 0 {
		return 0
	}
	p := float64(l.Current) / float64(l.Total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// PullOperation iterates the progress records of POST /images/create.
// It is not restartable and must be closed by its owner.
type PullOperation struct {
	*stream

	ref    string
	status int
	dec    *json.Decoder

	mu     sync.Mutex
	layers map[string]LayerProgress
	order  []string
	last   string
}

func newPullOperation(op, ref string) *PullOperation {
	return &PullOperation{
		stream: newStream(op),
		ref:    ref,
		layers: make(map[string]LayerProgress),
	}
}

func (p *PullOperation) attach(status int, body io.Reader) {
	p.status = status
	p.dec = json.NewDecoder(body)
}

// Ref is the image reference being pulled.
func (p *PullOperation) Ref() string { return p.ref }

// Next blocks for the next record. It returns io.EOF once the engine closes
// the stream cleanly. A record that carries an error fails the operation
// with a KindEngine error.
func (p *PullOperation) Next() (PullEvent, error) {
	if err := p.check(); err != nil {
		return PullEvent{}, err
	}

	var msg jsonmessage.JSONMessage
	if err := p.dec.Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) && p.ctx.Err() == nil {
			return PullEvent{}, p.finish()
		}
		return PullEvent{}, p.interrupted(err)
	}
	p.receiving()

	if msg.Error != nil || msg.ErrorMessage != "" {
		return PullEvent{}, p.fail(p.recordError(msg))
	}

	ev := PullEvent{ID: msg.ID, Status: msg.Status}
	if msg.Progress != nil {
		ev.Current = msg.Progress.Current
		ev.Total = msg.Progress.Total
	}
	p.apply(ev)
	return ev, nil
}

func (p *PullOperation) recordError(msg jsonmessage.JSONMessage) error {
	code := p.status
	text := msg.ErrorMessage
	if msg.Error != nil {
		if msg.Error.Code != 0 {
			code = msg.Error.Code
		}
		if msg.Error.Message != "" {
			text = msg.Error.Message
		}
	}
	return &Error{Kind: KindEngine, Op: p.op, StatusCode: code, Body: text}
}

// apply folds ev into the layer table. Repeated or out-of-order records for
// a layer overwrite it in place.
func (p *PullOperation) apply(ev PullEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.ID == "" {
		p.last = ev.Status
		return
	}
	if _, seen := p.layers[ev.ID]; !seen {
		p.order = append(p.order, ev.ID)
	}
	p.layers[ev.ID] = LayerProgress(ev)
}

// Layers returns one entry per layer seen so far, in first-seen order.
func (p *PullOperation) Layers() []LayerProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LayerProgress, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.layers[id])
	}
	return out
}

// Status returns the latest image-wide status line, e.g. the final digest
// or "Status: Downloaded newer image for nginx:latest".
func (p *PullOperation) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Wait drains the stream, calling fn for every record when fn is non-nil.
// It returns nil once the pull completed and the failure otherwise.
func (p *PullOperation) Wait(fn func(PullEvent)) error {
	defer p.Close()
	for {
		ev, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if fn != nil {
			fn(ev)
		}
	}
}
