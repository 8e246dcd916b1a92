package irrecoverable

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

// Signaler sends the error out.
type Signaler struct {
	errChan   chan error
	errThrown bool
}

func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{errChan: errChan}, errChan
}

// Throw is a narrow drop-in replacement for panic, log.Fatal, log.Panic, etc.
// anywhere there's something connected to the error channel. It only sends
// the first error it is called with; subsequent errors are dropped.
// Throw does not return: it terminates the calling goroutine.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	if !s.errThrown {
		s.errThrown = true
		s.errChan <- err
		close(s.errChan)
	}
}

// SignalerContext is a constrained interface to provide a drop-in replacement
// for context.Context including in interfaces that compose it.
type SignalerContext interface {
	context.Context
	Throw(err error) // delegates to the signaler
	sealed()         // private, to constrain builder to using WithSignaler
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler is the One True Way of getting a SignalerContext.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}

// Throw enables throwing an irrecoverable error using any context.Context.
// If the context is not a SignalerContext, the error cannot be propagated
// and the process exits: a missing signaler is itself an implementation bug.
func Throw(ctx context.Context, err error) {
	signalerAbleContext, ok := ctx.(SignalerContext)
	if ok {
		signalerAbleContext.Throw(err)
	}
	fmt.Fprintf(os.Stderr, "irrecoverable error signaler not found for context, please implement! Unhandled irrecoverable error: %v\n", err)
	os.Exit(1)
}
