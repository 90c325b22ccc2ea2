package bridge

import "github.com/cockroachdb/errors"

// Policy rejections. These are signaled synchronously to the command's
// caller and never reach the upstream client.
var (
	ErrControlDisabled = errors.New("control is disabled")
	ErrRampInProgress  = errors.New("ramp in progress")
	ErrNotConfigured   = errors.New("not configured")
)
