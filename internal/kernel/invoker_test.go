package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mproulx/herald/internal/audit"
	"github.com/mproulx/herald/internal/billing"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/events"
	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/storage"
)

const (
	testFunction = "FN_ECHO_V1"
	testLocator  = "test.echo"
	testCost     = 100
)

type kernelEnv struct {
	kernel   *Kernel
	requests *request.Store
	catalog  *catalog.Store
	registry *catalog.Registry
	gate     *billing.Gate
	audit    *audit.Logger
}

func newKernelEnv(t *testing.T) *kernelEnv {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "herald.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &kernelEnv{
		requests: request.New(db),
		catalog:  catalog.NewStore(db),
		registry: catalog.NewRegistry(),
		gate:     billing.NewGate(db),
		audit:    audit.NewLogger(db),
	}
	env.kernel = New(env.requests, env.catalog, env.registry, env.gate, env.audit, events.NewHub(16), testCost)
	return env
}

// seedEcho installs an active echo function whose handler returns its
// payload unchanged.
func (e *kernelEnv) seedEcho(t *testing.T, timeoutSeconds int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.catalog.Upsert(ctx, catalog.Descriptor{
		FunctionCode:   testFunction,
		FunctionName:   "Echo",
		HandlerLocator: testLocator,
		TimeoutSeconds: timeoutSeconds,
		Active:         true,
	}))
	require.NoError(t, e.registry.Register(testLocator, catalog.HandlerFunc(
		func(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		})))
}

func (e *kernelEnv) seedEligibleUser(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.gate.SeedUser(ctx, userID, userID, "STARTER"))
	_, err := e.gate.SeedSubscription(ctx, userID, "monthly", billing.SubscriptionActive)
	require.NoError(t, err)
}

func (e *kernelEnv) enqueue(t *testing.T, userID string, payload string) string {
	t.Helper()
	id, err := e.requests.Enqueue(context.Background(), request.EnqueueRequest{
		FunctionCode: testFunction,
		UserID:       userID,
		Payload:      []byte(payload),
	})
	require.NoError(t, err)
	return id
}

func TestInvokeCompletesAndSettles(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEcho(t, 30)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	id := env.enqueue(t, "u1", `{"text":"hello"}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, r.Status)
	assert.JSONEq(t, `{"text":"hello"}`, string(r.Result))
	require.NotNil(t, r.ExecutionTimeMS)
	assert.GreaterOrEqual(t, *r.ExecutionTimeMS, int64(0))
	assert.NotNil(t, r.StartedAt)
	assert.NotNil(t, r.CompletedAt)

	total, err := env.gate.LedgerTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testCost, total)

	for _, action := range []string{audit.ActionExecutionStart, audit.ActionExecutionEnd} {
		n, err := env.audit.CountByAction(ctx, id, action)
		require.NoError(t, err)
		assert.Equal(t, 1, n, action)
	}
}

func TestInvokeDeniesIneligibleUser(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEcho(t, 30)
	ctx := context.Background()

	// User exists but has no active subscription.
	require.NoError(t, env.gate.SeedUser(ctx, "u-broke", "broke", "STARTER"))

	id := env.enqueue(t, "u-broke", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusDeniedBilling, r.Status)
	assert.JSONEq(t, `{"error":"billing check failed"}`, string(r.Result))
	assert.Nil(t, r.StartedAt, "denied requests never enter PROCESSING")
	assert.Nil(t, r.ExecutionTimeMS)

	// Denial is audited, but no execution lifecycle entries exist.
	n, err := env.audit.CountByAction(ctx, id, audit.ActionExecutionDenied)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	for _, action := range []string{audit.ActionExecutionStart, audit.ActionExecutionEnd} {
		n, err := env.audit.CountByAction(ctx, id, action)
		require.NoError(t, err)
		assert.Zero(t, n, action)
	}

	total, err := env.gate.LedgerTotal(ctx, "u-broke")
	require.NoError(t, err)
	assert.Zero(t, total, "denied requests are never billed")
}

func TestInvokeUnknownUserDenied(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEcho(t, 30)
	ctx := context.Background()

	id := env.enqueue(t, "u-ghost", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusDeniedBilling, r.Status)
}

func TestInvokeUnknownFunctionFails(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	id := env.enqueue(t, "u1", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, r.Status)
	assert.Contains(t, string(r.Result), "unknown function code")
	assert.Nil(t, r.StartedAt)
}

func TestInvokeHandlerErrorFails(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	require.NoError(t, env.catalog.Upsert(ctx, catalog.Descriptor{
		FunctionCode:   testFunction,
		HandlerLocator: testLocator,
		TimeoutSeconds: 30,
		Active:         true,
	}))
	require.NoError(t, env.registry.Register(testLocator, catalog.HandlerFunc(
		func(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
			return nil, fmt.Errorf("boom")
		})))

	id := env.enqueue(t, "u1", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, r.Status)
	assert.JSONEq(t, `{"error":"boom"}`, string(r.Result))
	require.NotNil(t, r.ExecutionTimeMS)

	// Failures still close the lifecycle with an end entry, and an error
	// entry in between.
	for _, action := range []string{audit.ActionExecutionStart, audit.ActionExecutionError, audit.ActionExecutionEnd} {
		n, err := env.audit.CountByAction(ctx, id, action)
		require.NoError(t, err)
		assert.Equal(t, 1, n, action)
	}

	total, err := env.gate.LedgerTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total, "failed requests are never billed")
}

func TestInvokeHandlerPanicFails(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	require.NoError(t, env.catalog.Upsert(ctx, catalog.Descriptor{
		FunctionCode:   testFunction,
		HandlerLocator: testLocator,
		TimeoutSeconds: 30,
		Active:         true,
	}))
	require.NoError(t, env.registry.Register(testLocator, catalog.HandlerFunc(
		func(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
			panic("nil map write")
		})))

	id := env.enqueue(t, "u1", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id), "a panicking handler must not escape the kernel")

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, r.Status)
	assert.JSONEq(t, `{"error":"handler panic: nil map write"}`, string(r.Result))
	require.NotNil(t, r.ExecutionTimeMS)

	for _, action := range []string{audit.ActionExecutionStart, audit.ActionExecutionError, audit.ActionExecutionEnd} {
		n, err := env.audit.CountByAction(ctx, id, action)
		require.NoError(t, err)
		assert.Equal(t, 1, n, action)
	}

	total, err := env.gate.LedgerTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInvokeTimeoutFails(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	require.NoError(t, env.catalog.Upsert(ctx, catalog.Descriptor{
		FunctionCode:   testFunction,
		HandlerLocator: testLocator,
		TimeoutSeconds: 1,
		Active:         true,
	}))
	require.NoError(t, env.registry.Register(testLocator, catalog.HandlerFunc(
		func(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})))

	id := env.enqueue(t, "u1", `{}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))

	r, err := env.requests.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, r.Status)
	assert.Contains(t, string(r.Result), "timed out after 1s")
	require.NotNil(t, r.ExecutionTimeMS)
	assert.GreaterOrEqual(t, *r.ExecutionTimeMS, int64(1000))
}

func TestInvokeTerminalRequestIsNoOp(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEcho(t, 30)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	id := env.enqueue(t, "u1", `{"n":1}`)
	require.NoError(t, env.kernel.Invoke(ctx, id))
	require.NoError(t, env.kernel.Invoke(ctx, id))

	// Re-invocation charged and audited nothing.
	total, err := env.gate.LedgerTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testCost, total)

	n, err := env.audit.CountByAction(ctx, id, audit.ActionExecutionStart)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInvokeMissingRequestIsNoOp(t *testing.T) {
	t.Parallel()

	// A vanished id is not an error: nothing executes, nothing is audited.
	env := newKernelEnv(t)
	err := env.kernel.Invoke(context.Background(), "req-missing")
	assert.NoError(t, err)

	entries, err := env.audit.ListByRequest(context.Background(), "req-missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPoolDrainsQueue(t *testing.T) {
	t.Parallel()

	env := newKernelEnv(t)
	env.seedEcho(t, 30)
	env.seedEligibleUser(t, "u1")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.enqueue(t, "u1", fmt.Sprintf(`{"n":%d}`, i)))
	}

	pool := NewPool(env.kernel, env.requests, 3, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		n, err := env.requests.CountByStatus(ctx, request.StatusCompleted)
		return err == nil && n == len(ids)
	}, 5*time.Second, 20*time.Millisecond)

	// Every request completed exactly once despite concurrent workers.
	for _, id := range ids {
		n, err := env.audit.CountByAction(ctx, id, audit.ActionExecutionStart)
		require.NoError(t, err)
		assert.Equal(t, 1, n, id)
	}
	total, err := env.gate.LedgerTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testCost*len(ids), total)
}
