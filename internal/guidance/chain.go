// ABOUTME: Chain tries responders in order and returns the first success
// ABOUTME: Lets a remote model fall back to the offline keyword table
package guidance

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Responder turns a user message into guidance text
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Chain tries each responder in order and returns the first success
type Chain struct {
	responders []Responder
	log        zerolog.Logger
}

// NewChain builds a chain; nil responders are skipped
func NewChain(log zerolog.Logger, responders ...Responder) *Chain {
	c := &Chain{log: log.With().Str("component", "guidance").Logger()}
	for _, r := range responders {
		if r != nil {
			c.responders = append(c.responders, r)
		}
	}
	return c
}

// Respond implements Responder
func (c *Chain) Respond(ctx context.Context, message string) (string, error) {
	var errs []error
	for i, r := range c.responders {
		text, err := r.Respond(ctx, message)
		if err == nil {
			return text, nil
		}
		c.log.Warn().Err(err).Int("responder", i).Msg("guidance responder failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", errors.New("no guidance responders configured")
	}
	return "", errors.Join(errs...)
}
