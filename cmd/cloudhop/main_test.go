package main

import (
	"reflect"
	"testing"
)

func TestKeyValues(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"access_key_id=AKIA", "secret_access_key=s"}, map[string]string{"access_key_id": "AKIA", "secret_access_key": "s"}, false},
		{"value with equals", []string{"sas=a=b"}, map[string]string{"sas": "a=b"}, false},
		{"trimmed key", []string{" region =eu-west-1"}, map[string]string{"region": "eu-west-1"}, false},
		{"missing separator", []string{"token"}, nil, true},
		{"empty key", []string{"=value"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyValues(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"assets", "discover", "migrate", "migrations", "plan", "providers", "resume", "rollback", "status", "strategies"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
}
