// Package circuitbreaker guards outbound HTTP calls with a gobreaker circuit
// so a failing upstream is not hammered by every terminal at once.
package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second
)

// ErrOpen is returned, wrapped by net/http, while the circuit rejects calls.
var ErrOpen = gobreaker.ErrOpenState

var errServerFailure = errors.New("upstream server failure")

type Settings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// Transport is an http.RoundTripper that counts transport errors and 5xx
// answers as failures. 4xx answers are the caller's fault and never trip it.
type Transport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func NewTransport(next http.RoundTripper, s Settings) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = defaultMaxFailures
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = defaultOpenTimeout
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxFailures := s.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about the upstream
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return &Transport{next: next, cb: cb}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, nil
	})
	if errors.Is(err, errServerFailure) {
		return resp, nil
	}
	return resp, err
}

func (t *Transport) State() gobreaker.State {
	return t.cb.State()
}
