package lifecycle

import (
	"errors"
	"fmt"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// ErrAlreadyClosed is returned when a terminal transition is attempted on a
// call that has already been closed. Callers retrying an expire should treat
// it as success.
var ErrAlreadyClosed = errors.New("research call already closed")

// IllegalTransitionError reports a state change that is not legal from the
// call's current status. It is never retried automatically.
type IllegalTransitionError struct {
	CallID int64
	From   models.CallStatus
	Op     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s call %d from status %s", e.Op, e.CallID, e.From)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}
