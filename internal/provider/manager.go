package provider

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/pkg/eventbus"
)

// registration pairs a Provider with the ranking/throttling/breaking state
// the Manager maintains around it.
type registration struct {
	provider  Provider
	chain     string
	priority  int
	rate      *RateBucket
	circuit   *CircuitBreaker
	attempts  atomic.Int64
	successes atomic.Int64
}

// recordAttempt updates the observed success-rate counters used to break
// same-priority ties (spec.md §4.2).
func (r *registration) recordAttempt(success bool) {
	r.attempts.Add(1)
	if success {
		r.successes.Add(1)
	}
}

// successRate returns the observed success rate, optimistically 1.0 until
// the provider has been tried at least once so an unproven provider doesn't
// rank below one with real observed failures.
func (r *registration) successRate() float64 {
	attempts := r.attempts.Load()
	if attempts == 0 {
		return 1.0
	}
	return float64(r.successes.Load()) / float64(attempts)
}

// Manager is the multi-provider failover executor described in spec.md
// §4.2: it ranks the providers registered for a chain by priority, and for
// each Execute call walks them in rank order, skipping any whose circuit is
// open, waiting out its rate bucket, and failing over to the next candidate
// on a retryable error.
//
// Grounded on the teacher's src/chainadapter/provider.GetProviderWithFallback,
// generalized from a single-health-check fallback into the full
// rate-limited, circuit-broken ranking spec.md requires.
type Manager struct {
	mu    sync.RWMutex
	byChain map[string][]*registration
	bus   *eventbus.Bus
}

// NewManager builds an empty Manager. bus may be nil, in which case no
// events are published.
func NewManager(bus *eventbus.Bus) *Manager {
	return &Manager{byChain: make(map[string][]*registration), bus: bus}
}

// Register adds p as a candidate for chain at priority (lower is tried
// first), with its own rate bucket and circuit breaker.
func (m *Manager) Register(chain string, p Provider, priority int, rate *RateBucket, circuitCfg CircuitConfig) {
	reg := &registration{
		provider: p,
		chain:    chain,
		priority: priority,
		rate:     rate,
		circuit: NewCircuitBreaker(circuitCfg, func(from, to CircuitState) {
			m.emitTransition(p.Name(), from, to)
		}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byChain[chain] = append(m.byChain[chain], reg)
	sort.SliceStable(m.byChain[chain], func(i, j int) bool {
		return m.byChain[chain][i].priority < m.byChain[chain][j].priority
	})
}

func (m *Manager) emitTransition(providerName string, from, to CircuitState) {
	if m.bus == nil {
		return
	}
	topic := eventbus.TopicCircuitOpened
	switch to {
	case CircuitClosed:
		topic = eventbus.TopicCircuitClosed
	case CircuitHalfOpen:
		topic = eventbus.TopicCircuitHalfOpen
	}
	m.bus.Publish(context.Background(), eventbus.Event{
		Topic:      topic,
		SourceName: providerName,
		Metadata:   map[string]any{"from": string(from), "to": string(to)},
	})
}

func (m *Manager) candidates(chain string, op Operation) []*registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	regs := m.byChain[chain]
	out := make([]*registration, 0, len(regs))
	for _, r := range regs {
		if Supports(r.provider, op) {
			out = append(out, r)
		}
	}
	// Priority is the primary rank; same-priority registrations are then
	// broken by observed success rate (spec.md §4.2).
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].successRate() > out[j].successRate()
	})
	return out
}

// Execute runs op against the best available provider registered for chain,
// failing over to the next-ranked provider on a retryable
// *ProviderError and returning immediately on anything else.
func Execute[T any](ctx context.Context, m *Manager, chain string, op Operation, args Args) (FailoverExecutionResult[T], error) {
	var zero FailoverExecutionResult[T]

	regs := m.candidates(chain, op)
	if len(regs) == 0 {
		return zero, domain.NewError(domain.KindNoCapableProvider, "no provider registered for chain/operation").
			WithContext(map[string]any{"chain": chain, "operation": string(op)})
	}

	var attempts []AttemptRecord
	var lastErr error

	for _, reg := range regs {
		if !reg.circuit.Allow() {
			attempts = append(attempts, AttemptRecord{ProviderName: reg.provider.Name(), Err: domain.NewError(domain.KindProviderCircuitOpen, "circuit open")})
			continue
		}

		if reg.rate != nil {
			if err := reg.rate.Wait(ctx); err != nil {
				return zero, domain.Wrap(domain.KindCancelled, "cancelled while waiting for rate bucket", err)
			}
		}

		start := time.Now()
		result, err := reg.provider.Execute(ctx, op, args)
		dur := time.Since(start)
		reg.recordAttempt(err == nil)
		attempts = append(attempts, AttemptRecord{ProviderName: reg.provider.Name(), Duration: dur, Err: err})

		m.publishCall(chain, reg.provider.Name(), op, dur, err)

		if err == nil {
			reg.circuit.RecordSuccess()
			typed, ok := result.(T)
			if !ok {
				return zero, domain.NewError(domain.KindProviderNonRetryable, "provider returned unexpected result type").
					WithContext(map[string]any{"provider": reg.provider.Name()})
			}
			return FailoverExecutionResult[T]{Data: typed, Provider: reg.provider.Name(), Attempts: attempts}, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			// Non-transient: the provider is reachable, it just rejected this
			// call, so the breaker's failure count is left untouched.
			return zero, domain.Wrap(domain.KindProviderNonRetryable, "provider returned non-retryable error", err).
				WithContext(map[string]any{"provider": reg.provider.Name()})
		}
		reg.circuit.RecordFailure()
		m.publishFailover(chain, reg.provider.Name(), op)
	}

	return zero, domain.Wrap(domain.KindProviderTransient, "all candidate providers exhausted", lastErr).
		WithContext(map[string]any{"chain": chain, "operation": string(op), "attempts": len(attempts)})
}

func (m *Manager) publishCall(chain, providerName string, op Operation, dur time.Duration, err error) {
	if m.bus == nil {
		return
	}
	meta := map[string]any{"chain": chain, "operation": string(op)}
	if err != nil {
		meta["error"] = err.Error()
	}
	m.bus.Publish(context.Background(), eventbus.Event{
		Topic:      eventbus.TopicProviderCall,
		SourceName: providerName,
		Duration:   dur,
		Metadata:   meta,
	})
}

func (m *Manager) publishFailover(chain, providerName string, op Operation) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), eventbus.Event{
		Topic:      eventbus.TopicProviderFailover,
		SourceName: providerName,
		Metadata:   map[string]any{"chain": chain, "operation": string(op)},
	})
}
