// ABOUTME: Outbox error values and classification
// ABOUTME: Irrecoverable errors are dropped instead of retried
package outbox

import (
	"errors"
	"fmt"
)

// ErrExecutorClosed is returned by Submit after Stop
var ErrExecutorClosed = errors.New("outbox closed")

// ErrQueueFull is wrapped by QueueFullError
var ErrQueueFull = errors.New("outbox shard full")

// QueueFullError reports which shard rejected a job
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("outbox shard %d full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Unwrap() error { return ErrQueueFull }

// irrecoverable is implemented by errors that must not be retried
type irrecoverable interface {
	Irrecoverable() bool
}

func isIrrecoverable(err error) bool {
	var irr irrecoverable
	return errors.As(err, &irr) && irr.Irrecoverable()
}
