package stream

import "errors"

// ErrNotConnected is returned by Subscribe when the streaming channel is not
// established. Callers are expected to wait for the connect notification and
// re-issue the subscription; nothing is queued on their behalf.
var ErrNotConnected = errors.New("stream: not connected")

// errClosed marks a connect attempt superseded by Close. It stops the
// reconnect loop without surfacing an error to the caller.
var errClosed = errors.New("stream: manager closed")
