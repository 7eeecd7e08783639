package strategy

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/cloudtest"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	want := append([]string(nil), Catalogue...)
	sort.Strings(want)
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected names %v, got %v", want, got)
	}

	for _, name := range Catalogue {
		if !r.Known(name) {
			t.Errorf("Expected %s to be known", name)
		}
	}
	for name, want := range map[string]bool{Rehost: true, Replatform: true, Refactor: true, Retire: false, Repurchase: false} {
		if got := r.Executable(name); got != want {
			t.Errorf("Executable(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestRegistryNew(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		strategy string
		wantErr  bool
		wantName string
	}{
		{"lowercase", "rehost", false, Rehost},
		{"mixed case", "RePlatform", false, Replatform},
		{"padded", " refactor ", false, Refactor},
		{"planning only", "retain", true, ""},
		{"unknown", "teleport", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, target := cloudtest.New(cloud.ProviderAzure), cloudtest.New(cloud.ProviderAWS)
			exec, err := r.New(tt.strategy, source, target, Options{})

			if len(source.Calls())+len(target.Calls()) != 0 {
				t.Errorf("Expected no adapter calls, got %v %v", source.Calls(), target.Calls())
			}
			if tt.wantErr {
				var unsupported *UnsupportedStrategyError
				if !errors.As(err, &unsupported) {
					t.Fatalf("Expected UnsupportedStrategyError, got %v", err)
				}
				if !errors.Is(err, cloud.ErrConfiguration) {
					t.Error("Expected unsupported strategy to be a configuration error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if exec.Name() != tt.wantName {
				t.Errorf("Expected %s, got %s", tt.wantName, exec.Name())
			}
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("rehost", NewRehost); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := r.Register("REHOST", NewRehost); err == nil {
		t.Error("Expected error registering a duplicate strategy")
	}
	if err := r.Register("  ", NewRehost); err == nil {
		t.Error("Expected error registering an empty name")
	}
}
