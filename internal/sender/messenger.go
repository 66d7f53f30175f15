// Package sender delivers campaign messages through registered sessions.
// The transport behind a session is abstracted as a Messenger so the bulk
// handler can be exercised without a live messaging backend.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/session"
)

// Messenger sends one message to one target through the session identified
// by its locator.
type Messenger interface {
	Send(ctx context.Context, sessionLocator, target, message string) error
}

// PermanentError signals that the session itself is unusable, not just this
// one delivery. The bulk handler demotes the session to Status and stops
// using it for the rest of the batch.
type PermanentError struct {
	Status session.Status
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Status, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Banned wraps err as a permanent ban of the sending session.
func Banned(err error) *PermanentError {
	return &PermanentError{Status: session.StatusBanned, Err: err}
}

// Limited wraps err as a rate limit on the sending session.
func Limited(err error) *PermanentError {
	return &PermanentError{Status: session.StatusLimited, Err: err}
}

// LogMessenger logs deliveries instead of performing them. Default transport
// for development and dry runs.
type LogMessenger struct {
	logger *slog.Logger
}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{logger: log.WithComponent("messenger")}
}

func (m *LogMessenger) Send(ctx context.Context, sessionLocator, target, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("message sent",
		"session", sessionLocator,
		"target", target,
		"length", len(message),
	)
	return nil
}
