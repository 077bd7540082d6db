package auth

import (
	"log/slog"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used to report acquisitions and failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCarrier sets the carrier id attached to errors and log lines.
func WithCarrier(id string) Option {
	return func(m *Manager) { m.carrier = id }
}

// WithRecorder sets the observer notified after every token exchange.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}
