package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Source: SourceMigration, Type: MigrationStarted}, "cloudhop.migration.started"},
		{Event{Source: SourceMigration, Type: MigrationRolledBack}, "cloudhop.migration.rolled_back"},
		{Event{Source: SourceDiscovery, Type: DiscoveryFailed}, "cloudhop.discovery.failed"},
	}
	for _, tt := range tests {
		if got := Subject("cloudhop", tt.e); got != tt.want {
			t.Errorf("Subject() = %s, want %s", got, tt.want)
		}
	}
}

func TestEventJSON(t *testing.T) {
	e := Event{
		Source:      SourceMigration,
		Type:        MigrationPhase,
		MigrationID: "m-1",
		AssetID:     "a-1",
		Status:      "in_progress",
		Phase:       "execute",
		Time:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got["Source"]; ok {
		t.Error("Expected source to stay out of the payload")
	}
	if got["migration_id"] != "m-1" || got["phase"] != "execute" || got["type"] != "phase" {
		t.Errorf("Unexpected payload: %s", data)
	}
}

func TestNATSPublishWithoutConnection(t *testing.T) {
	p := &NATS{prefix: "cloudhop"}
	if err := p.Publish(context.Background(), Event{Source: SourceMigration, Type: MigrationStarted}); err == nil {
		t.Error("Expected error publishing without a connection")
	}
	p.Close()
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	p.Close()
}
