// Package events publishes indexing lifecycle events to NATS.
//
// Each indexing run emits "started" followed by "completed" or "failed" on
//
//	{prefix}.index.{repository}.{status}
//
// with a JSON-encoded Event as the message body. Publishing is best effort
// and never fails the run it describes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "repoindex"

// Status values carried by Event.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event describes one step of an indexing run.
type Event struct {
	// RunID correlates the events of one run.
	RunID      string    `json:"run_id"`
	Repository string    `json:"repository"`
	Status     string    `json:"status"`
	Root       string    `json:"root"`
	Branch     string    `json:"branch,omitempty"`
	Points     int       `json:"points,omitempty"`
	Error      string    `json:"error,omitempty"`
	Duration   string    `json:"duration,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Config configures a NATS publisher.
type Config struct {
	// URL of the NATS server. Empty disables publishing.
	URL           string
	SubjectPrefix string
	// Timeout bounds the initial connection.
	Timeout time.Duration
}

// New connects to cfg.URL, or returns a Noop publisher when it is empty.
func New(cfg Config) (Publisher, error) {
	if cfg.URL == "" {
		return Noop{}, nil
	}
	opts := []nats.Option{
		nats.Name("repoindex"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, nats.Timeout(cfg.Timeout))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	return NewNATSPublisher(nc, cfg.SubjectPrefix), nil
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an established connection. The publisher owns nc
// and closes it on Close.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event for repository and status goes to.
func (p *NATSPublisher) Subject(repository, status string) string {
	return fmt.Sprintf("%s.index.%s.%s", p.prefix, repository, status)
}

// Publish sends e. Repository names never contain '.', so they are safe
// as a subject token.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e.Repository, e.Status), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Status, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
