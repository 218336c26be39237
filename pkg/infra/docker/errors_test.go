package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := engineError("container.stop", 404, []byte(`{"message":"No such container: ghost"}`))
	assert.Equal(t, "container.stop: EngineError (status 404): No such container: ghost", err.Error())
	assert.Equal(t, `{"message":"No such container: ghost"}`, err.Body)

	plain := engineError("image.remove", 500, []byte("boom\n"))
	assert.Equal(t, "image.remove: EngineError (status 500): boom", plain.Error())

	v := validationError("container.start", "%s is required", "container id")
	assert.Equal(t, "container.start: ValidationError: container id is required", v.Error())
}

func TestError_IsMatchesKindAndStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", engineError("container.stop", 404, nil))

	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, &Error{Kind: KindEngine, StatusCode: 404})
	assert.NotErrorIs(t, err, &Error{Kind: KindEngine, StatusCode: 409})
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestEngineError_CarriesErrdefsClass(t *testing.T) {
	assert.True(t, cerrdefs.IsNotFound(engineError("op", 404, nil)))
	assert.True(t, cerrdefs.IsConflict(engineError("op", 409, nil)))
	assert.False(t, cerrdefs.IsNotFound(engineError("op", 500, nil)))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("x: %w", validationError("op", "bad"))))
	assert.Equal(t, 404, StatusCode(engineError("op", 404, nil)))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindUnknown},
		{"refused", refused, KindConnectionUnavailable},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, KindConnectionUnavailable},
		{"dial timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, KindTimeout},
		{"other", errors.New("something odd"), KindUnknown},
		{"already classified", validationError("", "x"), KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("test.op", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			var ce *Error
			if assert.ErrorAs(t, err, &ce) {
				assert.Equal(t, "test.op", ce.Op)
			}
		})
	}
	assert.NoError(t, Classify("op", nil))
}

func TestClassify_KeepsExistingOp(t *testing.T) {
	orig := validationError("container.start", "x")
	err := Classify("other", orig)
	assert.Same(t, orig, err)
}

func TestClassifyStream(t *testing.T) {
	err := classifyStream("image.pull", io.ErrUnexpectedEOF)
	assert.Equal(t, KindStreamInterrupted, KindOf(err))
	assert.Contains(t, err.Error(), "connection closed mid-stream")

	assert.Equal(t, KindTimeout, KindOf(classifyStream("image.pull", context.DeadlineExceeded)))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
