package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/z-voice/backend/internal/service/session"
)

var (
	ErrEmptyMessage      = errors.New("message is required")
	ErrSessionIDRequired = errors.New("session id is required")
	// ErrSessionNotFound is the store's sentinel, re-exported for handlers.
	ErrSessionNotFound = session.ErrSessionNotFound
)

// Operations reported by ModelInvocationError.
const (
	OpAcquire = "acquire"
	OpRespond = "respond"
)

// ModelInvocationError reports an exchange that never produced a reply: the
// gateway call failed or timed out, or the caller gave up while waiting for
// the session. The session history is left as it was.
type ModelInvocationError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed for session %s (%s): %v", e.SessionID, e.Op, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// IsModelInvocation reports whether err carries a ModelInvocationError.
func IsModelInvocation(err error) bool {
	var target *ModelInvocationError
	return errors.As(err, &target)
}
