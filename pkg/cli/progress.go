package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/morikuni/aec"

	"github.com/jguan/dockman/pkg/infra/docker"
)

type progressPrinter interface {
	Update(ev docker.PullEvent, layers []docker.LayerProgress)
	Done()
}

// newProgressPrinter redraws the layer list in place on a terminal and
// prints plain status changes everywhere else.
func newProgressPrinter(w io.Writer) progressPrinter {
	if f, ok := w.(*os.File); ok && isTerminal(f.Fd()) {
		return &liveProgress{w: w}
	}
	return &lineProgress{w: w, seen: make(map[string]string)}
}

type nopProgress struct{}

func (nopProgress) Update(docker.PullEvent, []docker.LayerProgress) {}
func (nopProgress) Done()                                          {}

type lineProgress struct {
	w    io.Writer
	seen map[string]string
}

func (p *lineProgress) Update(ev docker.PullEvent, _ []docker.LayerProgress) {
	// Image-wide lines carry the final digest and status; the caller
	// prints the last one when the pull ends.
	if ev.ID == "" {
		return
	}
	if p.seen[ev.ID] == ev.Status {
		return
	}
	p.seen[ev.ID] = ev.Status
	fmt.Fprintf(p.w, "%s: %s\n", ev.ID, ev.Status)
}

func (p *lineProgress) Done() {}

type liveProgress struct {
	w     io.Writer
	drawn int
}

func (p *liveProgress) Update(_ docker.PullEvent, layers []docker.LayerProgress) {
	var b strings.Builder
	if p.drawn > 0 {
		b.WriteString(aec.Up(uint(p.drawn)).String())
	}
	for _, l := range layers {
		b.WriteString(aec.EraseLine(aec.EraseModes.All).String())
		b.WriteString(layerLine(l))
		b.WriteByte('\n')
	}
	p.drawn = len(layers)
	fmt.Fprint(p.w, b.String())
}

func (p *liveProgress) Done() {}

const progressBarWidth = 30

func layerLine(l docker.LayerProgress) string {
	if l.Total <= 0 {
		return fmt.Sprintf("%s: %s", l.ID, l.Status)
	}
	pct := l.Percent()
	filled := int(pct / 100 * progressBarWidth)
	bar := strings.Repeat("=", filled)
	if filled < progressBarWidth {
		bar += ">" + strings.Repeat(" ", progressBarWidth-filled-1)
	}
	return fmt.Sprintf("%s: %-12s [%s] %s/%s",
		l.ID, l.Status, bar,
		units.HumanSize(float64(l.Current)), units.HumanSize(float64(l.Total)))
}
