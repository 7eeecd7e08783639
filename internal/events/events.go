// Package events publishes migration and discovery lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

// Event types.
const (
	MigrationStarted    = "started"
	MigrationPhase      = "phase"
	MigrationProgress   = "progress"
	MigrationCompleted  = "completed"
	MigrationFailed     = "failed"
	MigrationRolledBack = "rolled_back"
	DiscoveryCompleted  = "completed"
	DiscoveryFailed     = "failed"
)

// Event sources, used as the subject segment after the prefix.
const (
	SourceMigration = "migration"
	SourceDiscovery = "discovery"
)

// Event is one lifecycle notification.
type Event struct {
	Source      string    `json:"-"`
	Type        string    `json:"type"`
	MigrationID string    `json:"migration_id,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	AssetID     string    `json:"asset_id,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher delivers events. Publish failures never affect the caller's work.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Subject returns the subject e is published on under prefix.
func Subject(prefix string, e Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.Source, e.Type)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
func (Nop) Close()                                     {}

// NATS publishes JSON events on a NATS connection.
type NATS struct {
	nc     *nats.Conn
	prefix string
	logger *logger.Logger
}

// NewNATS connects to url and publishes under prefix. The connection
// reconnects indefinitely.
func NewNATS(url, prefix string, log *logger.Logger) (*NATS, error) {
	if log == nil {
		log = logger.NewNop()
	}
	opts := []nats.Option{
		nats.Name("cloudhop"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warningf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATS{nc: nc, prefix: prefix, logger: log}, nil
}

func (p *NATS) Publish(ctx context.Context, e Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.nc.Publish(Subject(p.prefix, e), payload)
}

// Close drains pending messages and closes the connection.
func (p *NATS) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warningf("Failed to drain NATS connection: %v", err)
		}
		p.nc.Close()
	}
}
