package providers

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

func TestNewRegistryListsBuiltins(t *testing.T) {
	got := NewRegistry().Providers()
	want := []string{"aws", "azure", "gcp", "oci"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	r := NewRegistry()
	if err := Register(r); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestNewDispatchesCaseInsensitively(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		provider string
		key      string
	}{
		{"AZURE", "subscription_id"},
		{"Gcp", "project_id"},
		{" oci ", "compartment_id"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_, err := r.New(context.Background(), cloud.Credentials{Provider: tt.provider}, cloud.Options{})
			var missing *cloud.MissingCredentialError
			if !errors.As(err, &missing) || missing.Key != tt.key {
				t.Errorf("Expected missing %s, got %v", tt.key, err)
			}
			if !cloud.IsConfiguration(err) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := NewRegistry().New(context.Background(), cloud.Credentials{Provider: "digitalocean"}, cloud.Options{})
	var unsupported *cloud.UnsupportedProviderError
	if !errors.As(err, &unsupported) {
		t.Errorf("Expected UnsupportedProviderError, got %v", err)
	}
}
