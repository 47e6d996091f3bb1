package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal Provider stub for exercising Execute's
// ranking/failover/type-assertion behavior without any real network call.
type fakeProvider struct {
	name string
	caps map[Operation]struct{}
	call func(ctx context.Context, op Operation, args Args) (any, error)
}

func (f *fakeProvider) Name() string                           { return f.name }
func (f *fakeProvider) Capabilities() map[Operation]struct{}    { return f.caps }
func (f *fakeProvider) IsHealthy(context.Context) (bool, error) { return true, nil }
func (f *fakeProvider) Execute(ctx context.Context, op Operation, args Args) (any, error) {
	return f.call(ctx, op, args)
}

func txCaps() map[Operation]struct{} {
	return map[Operation]struct{}{OpGetAddressTransactions: {}}
}

func newUnlimitedRate() *RateBucket { return NewRateBucket(1000, 1000, 0) }

func TestManagerExecuteSucceedsOnHighestPriorityProvider(t *testing.T) {
	m := NewManager(nil)
	primary := &fakeProvider{name: "primary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return "primary-result", nil
	}}
	secondary := &fakeProvider{name: "secondary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		t.Fatal("secondary must not be called when primary succeeds")
		return nil, nil
	}}
	m.Register("eth", primary, 1, newUnlimitedRate(), DefaultCircuitConfig())
	m.Register("eth", secondary, 2, newUnlimitedRate(), DefaultCircuitConfig())

	result, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, "primary-result", result.Data)
	assert.Equal(t, "primary", result.Provider)
	assert.Len(t, result.Attempts, 1)
}

func TestManagerExecuteFailsOverOnRetryableError(t *testing.T) {
	m := NewManager(nil)
	primary := &fakeProvider{name: "primary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return nil, NewProviderError("TIMEOUT", "timed out", "primary", true, nil)
	}}
	secondary := &fakeProvider{name: "secondary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return "secondary-result", nil
	}}
	m.Register("eth", primary, 1, newUnlimitedRate(), DefaultCircuitConfig())
	m.Register("eth", secondary, 2, newUnlimitedRate(), DefaultCircuitConfig())

	result, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, "secondary-result", result.Data)
	assert.Equal(t, "secondary", result.Provider)
	assert.Len(t, result.Attempts, 2)
}

func TestManagerExecuteReturnsImmediatelyOnNonRetryableError(t *testing.T) {
	m := NewManager(nil)
	primary := &fakeProvider{name: "primary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return nil, NewProviderError("BAD_REQUEST", "malformed address", "primary", false, nil)
	}}
	secondary := &fakeProvider{name: "secondary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		t.Fatal("secondary must not be tried after a non-retryable error")
		return nil, nil
	}}
	m.Register("eth", primary, 1, newUnlimitedRate(), DefaultCircuitConfig())
	m.Register("eth", secondary, 2, newUnlimitedRate(), DefaultCircuitConfig())

	_, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.Error(t, err)
}

func TestManagerExecuteNoCapableProvider(t *testing.T) {
	m := NewManager(nil)
	_, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	assert.Error(t, err)
}

func TestManagerExecuteSkipsOpenCircuit(t *testing.T) {
	m := NewManager(nil)
	cfg := DefaultCircuitConfig()
	cfg.FailureThreshold = 1

	var primaryCalls int
	primary := &fakeProvider{name: "primary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		primaryCalls++
		return nil, NewProviderError("DOWN", "down", "primary", true, nil)
	}}
	secondary := &fakeProvider{name: "secondary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return "secondary-result", nil
	}}
	m.Register("eth", primary, 1, newUnlimitedRate(), cfg)
	m.Register("eth", secondary, 2, newUnlimitedRate(), DefaultCircuitConfig())

	// First call trips primary's breaker open (threshold 1) and falls over.
	_, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, 1, primaryCalls)

	// Second call: primary's circuit is now open, so it must be skipped
	// entirely rather than attempted again.
	result, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, "secondary-result", result.Data)
	assert.Equal(t, 1, primaryCalls, "a provider with an open circuit must not be called")
}

func TestManagerExecuteRanksSamePriorityBySuccessRate(t *testing.T) {
	m := NewManager(nil)
	var flakyCalls, solidCalls int
	flaky := &fakeProvider{name: "flaky", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		flakyCalls++
		return nil, NewProviderError("TIMEOUT", "timed out", "flaky", true, nil)
	}}
	solid := &fakeProvider{name: "solid", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		solidCalls++
		return "solid-result", nil
	}}
	// Same priority: registration order alone would try flaky first.
	m.Register("eth", flaky, 1, newUnlimitedRate(), DefaultCircuitConfig())
	m.Register("eth", solid, 1, newUnlimitedRate(), DefaultCircuitConfig())

	// First call observes flaky's failure and solid's success.
	result, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, "solid-result", result.Data)
	assert.Equal(t, 1, flakyCalls)
	assert.Equal(t, 1, solidCalls)

	// Second call: solid's observed success rate now outranks flaky's at the
	// same configured priority, so solid must be tried first and flaky must
	// not be attempted again.
	result, err = Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	require.NoError(t, err)
	assert.Equal(t, "solid-result", result.Data)
	assert.Equal(t, 1, flakyCalls, "the lower success-rate provider must not be retried ahead of the higher-rate one")
	assert.Equal(t, 2, solidCalls)
}

func TestManagerExecuteWrongResultTypeIsNonRetryable(t *testing.T) {
	m := NewManager(nil)
	primary := &fakeProvider{name: "primary", caps: txCaps(), call: func(context.Context, Operation, Args) (any, error) {
		return 42, nil // caller asks for string, provider returns an int
	}}
	m.Register("eth", primary, 1, newUnlimitedRate(), DefaultCircuitConfig())

	_, err := Execute[string](context.Background(), m, "eth", OpGetAddressTransactions, Args{})
	assert.Error(t, err)
}
