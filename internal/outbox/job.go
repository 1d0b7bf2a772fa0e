// ABOUTME: Job is the unit of work the outbox runs against the remote
// ABOUTME: JobFunc lets plain functions be queued
package outbox

import "context"

// Job is one remote write
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to a Job
type JobFunc func(ctx context.Context) error

// Run implements Job for JobFunc.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
