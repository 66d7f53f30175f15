// Package kernel implements the execution core: it takes queued requests
// through billing admission, catalog resolution, handler execution, and
// terminal settlement, writing the audit trail along the way.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mproulx/herald/internal/audit"
	"github.com/mproulx/herald/internal/billing"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/events"
	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/request"
)

// Kernel drives one request at a time from QUEUED to a terminal status.
type Kernel struct {
	requests *request.Store
	catalog  *catalog.Store
	registry *catalog.Registry
	gate     *billing.Gate
	audit    *audit.Logger
	events   *events.Hub
	cost     int
	logger   *slog.Logger
}

func New(requests *request.Store, cat *catalog.Store, reg *catalog.Registry, gate *billing.Gate, auditLog *audit.Logger, hub *events.Hub, defaultCost int) *Kernel {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if defaultCost <= 0 {
		defaultCost = 100
	}
	return &Kernel{
		requests: requests,
		catalog:  cat,
		registry: reg,
		gate:     gate,
		audit:    auditLog,
		events:   hub,
		cost:     defaultCost,
		logger:   log.WithComponent("kernel"),
	}
}

// Invoke executes one request end to end. Requests already terminal or
// already claimed by another worker are a silent no-op; losing the
// PROCESSING claim race is likewise not an error. The returned error covers
// storage failures only, never the business outcome of the request itself.
func (k *Kernel) Invoke(ctx context.Context, id string) error {
	r, err := k.requests.Get(ctx, id)
	if err != nil {
		// A vanished id is a no-op, same as a request already claimed by
		// someone else.
		if errors.Is(err, request.ErrNotFound) {
			log.WithRequest(id).Debug("request not found, nothing to invoke")
			return nil
		}
		return err
	}
	if r.Status != request.StatusQueued {
		return nil
	}

	logger := log.WithRequest(id).With("function_code", r.FunctionCode, "user_id", r.UserID)

	// Admission runs before the claim so a denied request never shows a
	// PROCESSING phase or an EXECUTION_START entry.
	eligible, err := k.gate.CheckEligibility(ctx, r.UserID, k.cost)
	if err != nil {
		return fmt.Errorf("billing check for %q: %w", id, err)
	}
	if !eligible {
		return k.deny(ctx, r, logger)
	}

	desc, err := k.catalog.Resolve(ctx, r.FunctionCode)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownFunction) || errors.Is(err, catalog.ErrInactiveFunction) {
			return k.rejectFailed(ctx, r, err.Error(), logger)
		}
		return fmt.Errorf("resolve function for %q: %w", id, err)
	}

	handler, ok := k.registry.Lookup(desc.HandlerLocator)
	if !ok {
		return k.rejectFailed(ctx, r, fmt.Sprintf("no handler registered for locator %q", desc.HandlerLocator), logger)
	}

	claimed, err := k.requests.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Debug("lost processing claim, skipping")
		return nil
	}

	if err := k.audit.Record(ctx, id, r.UserID, audit.ActionExecutionStart,
		fmt.Sprintf("Executing %s", r.FunctionCode)); err != nil {
		logger.Warn("failed to record start audit entry", "error", err)
	}

	k.execute(ctx, r, desc, handler, logger)
	return nil
}

// execute runs the handler under the catalog timeout and settles the
// request. Every path through here ends with a terminal status, a measured
// duration, and an EXECUTION_END entry.
func (k *Kernel) execute(ctx context.Context, r *request.Request, desc catalog.Descriptor, handler catalog.Handler, logger *slog.Logger) {
	hctx, cancel := context.WithTimeout(ctx, desc.Timeout())
	defer cancel()

	start := time.Now()
	out, herr := runHandler(hctx, handler, catalog.Invocation{RequestID: r.ID, UserID: r.UserID}, r.Payload)
	durationMS := time.Since(start).Milliseconds()

	status := request.StatusCompleted
	result := out

	if herr != nil {
		status = request.StatusFailed
		msg := herr.Error()
		if errors.Is(herr, context.DeadlineExceeded) || errors.Is(hctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("execution timed out after %s", desc.Timeout())
		}
		result = errorResult(msg)

		if err := k.audit.Record(ctx, r.ID, r.UserID, audit.ActionExecutionError, msg); err != nil {
			logger.Warn("failed to record error audit entry", "error", err)
		}
		logger.Warn("handler failed", "error", herr, "duration_ms", durationMS)
	} else {
		if err := k.gate.Settle(ctx, r.UserID, r.FunctionCode, k.cost); err != nil {
			logger.Error("failed to settle billing, failing request", "error", err)
			status = request.StatusFailed
			result = errorResult(fmt.Sprintf("billing settlement failed: %v", err))
		}
	}

	if err := k.requests.Finish(ctx, r.ID, status, result, durationMS); err != nil {
		logger.Error("failed to finish request", "error", err)
		return
	}

	if err := k.audit.Record(ctx, r.ID, r.UserID, audit.ActionExecutionEnd,
		fmt.Sprintf("execution_time_ms=%d", durationMS)); err != nil {
		logger.Warn("failed to record end audit entry", "error", err)
	}

	if status == request.StatusCompleted {
		k.events.Publish("request.completed", map[string]any{
			"request_id":  r.ID,
			"duration_ms": durationMS,
		})
		logger.Info("request completed", "duration_ms", durationMS)
	} else {
		k.events.Publish("request.failed", map[string]any{
			"request_id":  r.ID,
			"duration_ms": durationMS,
		})
	}
}

func (k *Kernel) deny(ctx context.Context, r *request.Request, logger *slog.Logger) error {
	rejected, err := k.requests.Reject(ctx, r.ID, request.StatusDeniedBilling,
		errorResult("billing check failed"))
	if err != nil {
		return err
	}
	if !rejected {
		return nil
	}

	if err := k.audit.Record(ctx, r.ID, r.UserID, audit.ActionExecutionDenied,
		fmt.Sprintf("Billing denied for %s", r.FunctionCode)); err != nil {
		logger.Warn("failed to record denial audit entry", "error", err)
	}
	k.events.Publish("request.denied", map[string]any{"request_id": r.ID})
	logger.Info("request denied by billing gate")
	return nil
}

func (k *Kernel) rejectFailed(ctx context.Context, r *request.Request, msg string, logger *slog.Logger) error {
	rejected, err := k.requests.Reject(ctx, r.ID, request.StatusFailed, errorResult(msg))
	if err != nil {
		return err
	}
	if !rejected {
		return nil
	}

	if err := k.audit.Record(ctx, r.ID, r.UserID, audit.ActionExecutionError, msg); err != nil {
		logger.Warn("failed to record error audit entry", "error", err)
	}
	k.events.Publish("request.failed", map[string]any{"request_id": r.ID})
	logger.Warn("request rejected", "reason", msg)
	return nil
}

// runHandler isolates handler execution so a panicking handler fails its
// own request instead of taking the daemon down with it.
func runHandler(ctx context.Context, h catalog.Handler, inv catalog.Invocation, payload json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, inv, payload)
}

func errorResult(msg string) []byte {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return []byte(`{"error":"unserializable error"}`)
	}
	return b
}
