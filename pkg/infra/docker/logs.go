package docker

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultLogTail is the number of trailing lines fetched when not set.
const DefaultLogTail = 100

// daemonErrPrefix is how stdcopy reports a system-error frame.
const daemonErrPrefix = "error from daemon in stream: "

// LogStream names the output a log line was written to.
type LogStream string

const (
	Stdout LogStream = "stdout"
	Stderr LogStream = "stderr"
)

// LogLine is one line of container output.
type LogLine struct {
	Stream    LogStream `json:"stream"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// LogOptions selects which lines ContainerLogs returns. Tail 0 means
// DefaultLogTail and a negative Tail means the whole log.
type LogOptions struct {
	Follow bool
	Tail   int
}

func (o LogOptions) tailParam() string {
	switch {
	case o.Tail < 0:
		return "all"
	case o.Tail == 0:
		return strconv.Itoa(DefaultLogTail)
	}
	return strconv.Itoa(o.Tail)
}

// LogOperation iterates the lines of GET /containers/{id}/logs. In follow
// mode the stream only ends when closed or cancelled.
type LogOperation struct {
	*stream

	container string
	lines     chan LogLine
	errc      chan error
	done      chan struct{}
}

func newLogOperation(op, id string) *LogOperation {
	l := &LogOperation{
		stream:    newStream(op),
		container: id,
		lines:     make(chan LogLine, 64),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}
	l.onRelease = func() { close(l.done) }
	return l
}

// Container is the id or name whose logs are streamed.
func (l *LogOperation) Container() string { return l.container }

// start launches the reader goroutine. Multiplexed bodies are split with
// stdcopy; TTY containers send a raw stream that is all stdout.
func (l *LogOperation) start(body io.Reader, contentType string) {
	go func() {
		out := &lineWriter{op: l, stream: Stdout}
		errw := &lineWriter{op: l, stream: Stderr}

		var err error
		if contentType == types.MediaTypeRawStream {
			_, err = io.Copy(out, body)
		} else {
			_, err = stdcopy.StdCopy(out, errw, body)
		}
		if err == nil {
			if err = out.flush(); err == nil {
				err = errw.flush()
			}
		}
		l.errc <- err
		close(l.lines)
	}()
}

func (l *LogOperation) emit(line LogLine) error {
	select {
	case l.lines <- line:
		return nil
	case <-l.done:
		return ErrOperationClosed
	}
}

// Next blocks for the next line. It returns io.EOF when a non-follow stream
// ends, and a StreamInterrupted error wrapping ErrOperationClosed once the
// operation was closed or its context cancelled.
func (l *LogOperation) Next() (LogLine, error) {
	if err := l.check(); err != nil {
		return LogLine{}, err
	}

	select {
	case line, ok := <-l.lines:
		if ok {
			l.receiving()
			return line, nil
		}
		return LogLine{}, l.end(<-l.errc)
	case <-l.done:
		return LogLine{}, l.check()
	}
}

func (l *LogOperation) end(err error) error {
	switch {
	case err == nil && l.ctx.Err() == nil:
		return l.finish()
	case err != nil && strings.HasPrefix(err.Error(), daemonErrPrefix):
		return l.fail(&Error{
			Kind: KindEngine,
			Op:   l.op,
			Body: strings.TrimPrefix(err.Error(), daemonErrPrefix),
		})
	case err == nil:
		err = io.ErrUnexpectedEOF
	}
	return l.interrupted(err)
}

// Collect drains a finite stream into memory.
func (l *LogOperation) Collect() ([]LogLine, error) {
	defer l.Close()
	var out []LogLine
	for {
		line, err := l.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, line)
	}
}

// maxLogLineBytes bounds a pending line. Longer output without a newline is
// delivered in pieces of this size.
const maxLogLineBytes = 16 << 10

// lineWriter turns the byte stream of one output into LogLines.
type lineWriter struct {
	op     *LogOperation
	stream LogStream
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	start := 0
	for {
		rest := w.buf[start:]
		i := bytes.IndexByte(rest, '\n')
		var line string
		switch {
		case i >= 0 && i <= maxLogLineBytes:
			line = string(rest[:i])
			start += i + 1
		case len(rest) >= maxLogLineBytes:
			line = string(rest[:maxLogLineBytes])
			start += maxLogLineBytes
		default:
			// Keep the partial line in a fresh slice so the consumed
			// prefix can be collected.
			w.buf = append([]byte(nil), rest...)
			return len(p), nil
		}
		if err := w.op.emit(parseLogLine(w.stream, line)); err != nil {
			return 0, err
		}
	}
}

func (w *lineWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	line := string(w.buf)
	w.buf = nil
	return w.op.emit(parseLogLine(w.stream, line))
}

// parseLogLine splits the RFC3339Nano prefix the engine adds when
// timestamps are requested. Lines without one are stamped on receipt.
func parseLogLine(stream LogStream, raw string) LogLine {
	raw = strings.TrimSuffix(raw, "\r")
	if ts, rest, ok := strings.Cut(raw, " "); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return LogLine{Stream: stream, Timestamp: t, Text: rest}
		}
	}
	return LogLine{Stream: stream, Timestamp: time.Now(), Text: raw}
}
