package breaker

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

const (
	metricRequests     = "leaseflake_breaker_requests_total"
	metricStateChanges = "leaseflake_breaker_state_changes_total"
)

type circuitBreaker struct {
	cfg  *Config
	opts *options

	requests     metrics.Counter
	stateChanges metrics.Counter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func newBreaker(cfg *Config, o *options) *circuitBreaker {
	cb := &circuitBreaker{
		cfg:      cfg,
		opts:     o,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	var err error
	if cb.requests, err = o.meter.Counter(metricRequests, "Calls passing through the circuit breaker"); err != nil {
		cb.requests, _ = metrics.Discard().Counter(metricRequests, "")
	}
	if cb.stateChanges, err = o.meter.Counter(metricStateChanges, "Circuit breaker state transitions"); err != nil {
		cb.stateChanges, _ = metrics.Discard().Counter(metricStateChanges, "")
	}
	return cb
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() error) error {
	if key == "" {
		return ErrKeyEmpty
	}

	_, err := cb.get(key).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})

	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
		cb.opts.logger.Debug("call rejected by open circuit", clog.String("key", key))
		err = ErrOpenState
	case err != nil && !cb.opts.isSuccess(err):
		result = "failure"
	}
	cb.requests.Inc(ctx, metrics.L("key", key), metrics.L("result", result))
	return err
}

func (cb *circuitBreaker) State(key string) State {
	cb.mu.Lock()
	b, ok := cb.breakers[key]
	cb.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return fromGobreaker(b.State())
}

func (cb *circuitBreaker) get(key string) *gobreaker.CircuitBreaker[struct{}] {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if b, ok := cb.breakers[key]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:          key,
		MaxRequests:   cb.cfg.MaxRequests,
		Interval:      cb.cfg.Interval,
		Timeout:       cb.cfg.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		IsSuccessful:  func(err error) bool { return err == nil || cb.opts.isSuccess(err) },
		OnStateChange: cb.onStateChange,
	})
	cb.breakers[key] = b
	return b
}

func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.cfg.FailureRatio
}

func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.opts.logger.Warn("circuit breaker state changed",
		clog.String("key", name),
		clog.String("from", fromGobreaker(from).String()),
		clog.String("to", fromGobreaker(to).String()))
	cb.stateChanges.Inc(context.Background(),
		metrics.L("key", name), metrics.L("to", fromGobreaker(to).String()))
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// IsBusinessError 协调者给出明确应答的 gRPC 状态，这类错误说明对端健康
func IsBusinessError(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.ResourceExhausted, codes.FailedPrecondition, codes.InvalidArgument, codes.NotFound:
		return true
	}
	return false
}
