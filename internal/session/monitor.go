package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pocketchat-dev/pocketchat/backend/internal/pocketbase"
)

// Status is the authentication state of a monitored client handle.
type Status int

const (
	// StatusUnknown means the first check has not run yet; callers must not
	// branch on authentication validity.
	StatusUnknown Status = iota
	// StatusChecking means the check is in flight.
	StatusChecking
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Monitor gates consumers of a client handle behind an initial validity
// check and tracks auth status transitions afterwards. Until Ready reports
// true the status is unknown and consumers should render a neutral state.
//
// There is no terminal state: the status keeps cycling between
// authenticated and unauthenticated with sign-ins and sign-outs.
type Monitor struct {
	client *pocketbase.Client

	mu     sync.Mutex
	status Status
	subs   []chan Status

	ready     chan struct{}
	readyOnce sync.Once
}

// NewMonitor wraps a client handle. Auth changes on the handle move the
// status once the initial check has completed.
func NewMonitor(client *pocketbase.Client) *Monitor {
	m := &Monitor{
		client: client,
		status: StatusUnknown,
		ready:  make(chan struct{}),
	}

	client.Auth.OnChange(func(token string, _ *pocketbase.Record) {
		if !m.Ready() {
			return
		}
		if token == "" {
			m.setStatus(StatusUnauthenticated)
		} else {
			m.setStatus(StatusAuthenticated)
		}
	})

	return m
}

// Start performs the initial validity check and flips the readiness signal.
// A locally expired token is cleared without contacting the backend; a
// locally valid one is confirmed server-side. Transport failures leave the
// token in place and report unauthenticated until a later check succeeds.
func (m *Monitor) Start(ctx context.Context) Status {
	m.setStatus(StatusChecking)

	status := StatusUnauthenticated
	switch {
	case m.client.Auth.Token() == "":
		// nothing stored
	case !m.client.Auth.IsValid():
		m.client.Auth.Clear()
	default:
		if _, err := m.client.AuthRefresh(ctx); err != nil {
			if !errors.Is(err, pocketbase.ErrTokenInvalid) {
				log.Warn().Err(err).Msg("session: auth refresh failed")
			}
		} else {
			status = StatusAuthenticated
		}
	}

	m.setStatus(status)
	m.readyOnce.Do(func() { close(m.ready) })
	return status
}

// Ready reports whether the initial check has completed.
func (m *Monitor) Ready() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the initial check completes or ctx is done.
func (m *Monitor) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current authentication status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe returns a channel receiving status transitions in the order
// they happen. Slow subscribers miss transitions rather than block the
// auth path.
func (m *Monitor) Subscribe() <-chan Status {
	ch := make(chan Status, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) setStatus(status Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	subs := append([]chan Status(nil), m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
			log.Debug().Stringer("status", status).Msg("session: dropped status notification")
		}
	}
}
