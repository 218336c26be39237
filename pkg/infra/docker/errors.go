package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/containerd/errdefs/pkg/errhttp"
)

// Kind is the closed set of failure classes a caller can observe.
type Kind string

const (
	KindConnectionUnavailable Kind = "ConnectionUnavailable"
	KindTimeout               Kind = "Timeout"
	KindEngine                Kind = "EngineError"
	KindValidation            Kind = "ValidationError"
	KindStreamInterrupted     Kind = "StreamInterrupted"
	KindUnknown               Kind = "UnknownError"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrConnectionUnavailable = &Error{Kind: KindConnectionUnavailable}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrEngine                = &Error{Kind: KindEngine}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrStreamInterrupted     = &Error{Kind: KindStreamInterrupted}
	ErrUnknown               = &Error{Kind: KindUnknown}
)

// ErrOperationClosed is the cause reported by reads on a closed stream.
var ErrOperationClosed = errors.New("operation closed")

// Error is the classified error returned by every client call.
type Error struct {
	Kind Kind
	// Op names the client call, e.g. "container.stop".
	Op string
	// StatusCode and Body are set for KindEngine. Body is verbatim.
	StatusCode int
	Body       string
	Detail     string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	switch {
	case e.Kind == KindEngine:
		if e.StatusCode != 0 {
			fmt.Fprintf(&b, " (status %d)", e.StatusCode)
		}
		if msg := e.EngineMessage(); msg != "" {
			b.WriteString(": ")
			b.WriteString(msg)
		}
	case e.Detail != "":
		b.WriteString(": ")
		b.WriteString(e.Detail)
	case e.Cause != nil:
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind, and on status code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// EngineMessage returns the engine's own text: the "message" field of a JSON
// error body, or the trimmed body itself.
func (e *Error) EngineMessage() string {
	if e.Body == "" {
		return e.Detail
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(e.Body)
}

// KindOf reports the kind of err, KindUnknown for unclassified errors and
// the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode returns the engine status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

func validationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// engineError builds the error for a non-success response. The cause is the
// errdefs class of the status so cerrdefs.IsNotFound and friends work.
func engineError(op string, status int, body []byte) *Error {
	return &Error{
		Kind:       KindEngine,
		Op:         op,
		StatusCode: status,
		Body:       string(body),
		Cause:      errhttp.ToNative(status),
	}
}

// Classify maps a transport fault to its kind. Already classified errors
// are returned unchanged apart from a missing Op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Op != "" {
			return err
		}
		cp := *ce
		cp.Op = op
		return &cp
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Op: op, Detail: "deadline exceeded", Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUnknown, Op: op, Detail: "canceled", Cause: err}
	case isConnectionFailure(err):
		return &Error{Kind: KindConnectionUnavailable, Op: op, Detail: rootMessage(err), Cause: err}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Detail: rootMessage(err), Cause: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Detail: err.Error(), Cause: err}
}

// classifyStream maps a read failure in the middle of a stream. Anything
// that is not a timeout or cancellation is an interruption.
func classifyStream(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Classify(op, err)
	}
	var ce *Error
	if errors.As(err, &ce) {
		return Classify(op, err)
	}
	detail := err.Error()
	if errors.Is(err, io.ErrUnexpectedEOF) {
		detail = "connection closed mid-stream"
	}
	return &Error{Kind: KindStreamInterrupted, Op: op, Detail: detail, Cause: err}
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout() {
		return true
	}
	return false
}

// rootMessage drops the *url.Error prefix ("Get \"http://...\": ").
func rootMessage(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}
