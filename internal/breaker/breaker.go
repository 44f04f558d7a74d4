// Package breaker guards calls to external embedding and generation
// services with a circuit breaker and an optional client-side rate limit.
// It never retries: an open circuit fails the call immediately.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pdfrag/internal/domain"
)

// Settings configures one guarded service.
type Settings struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are cleared.
	Interval time.Duration
	// Timeout the circuit stays open before probing again.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when the circuit opens.
	MinRequests  uint32
	FailureRatio float64
	// RatePerSecond limits outgoing calls. Zero disables the limiter.
	RatePerSecond float64
	Burst         int
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

type guard struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(s Settings, logger *slog.Logger) *guard {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "breaker", "service", s.Name)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn("circuit breaker opened", "from", from.String())
				return
			}
			log.Info("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
		// Empty answers and callers giving up say nothing about service health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrEmptyResponse) ||
				errors.Is(err, context.Canceled)
		},
	})

	g := &guard{name: s.Name, cb: cb}
	if s.RatePerSecond > 0 {
		burst := s.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(s.RatePerSecond), burst)
	}
	return g
}

func (g *guard) run(ctx context.Context, fn func() (any, error)) (any, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	v, err := g.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s unavailable: %w", g.name, err)
	}
	return v, err
}

// State reports the current circuit state.
func (g *guard) State() gobreaker.State {
	return g.cb.State()
}

// Embedder guards a domain.Embedder.
type Embedder struct {
	next  domain.Embedder
	guard *guard
}

func WrapEmbedder(next domain.Embedder, s Settings, logger *slog.Logger) *Embedder {
	if s.Name == "" {
		s.Name = next.Name()
	}
	return &Embedder{next: next, guard: newGuard(s, logger)}
}

func (e *Embedder) Name() string { return e.next.Name() }

func (e *Embedder) State() gobreaker.State { return e.guard.State() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.guard.run(ctx, func() (any, error) {
		return e.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := e.guard.run(ctx, func() (any, error) {
		return e.next.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

// Generator guards a domain.Generator.
type Generator struct {
	next  domain.Generator
	guard *guard
}

func WrapGenerator(next domain.Generator, s Settings, logger *slog.Logger) *Generator {
	if s.Name == "" {
		s.Name = next.Name()
	}
	return &Generator{next: next, guard: newGuard(s, logger)}
}

func (g *Generator) Name() string { return g.next.Name() }

func (g *Generator) State() gobreaker.State { return g.guard.State() }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	v, err := g.guard.run(ctx, func() (any, error) {
		return g.next.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
