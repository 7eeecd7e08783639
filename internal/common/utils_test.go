package common

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsWindowsOS(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Windows exact", "Windows", true},
		{"Windows server", "Windows Server 2019", true},
		{"Windows with spaces", "  windows  ", true},
		{"Ubuntu", "Ubuntu", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsWindowsOS(tt.input)
			if result != tt.expected {
				t.Errorf("IsWindowsOS(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsLinuxOS(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Ubuntu exact", "Ubuntu", true},
		{"Ubuntu with version", "Ubuntu 22.04", true},
		{"RHEL lowercase", "rhel", true},
		{"Rocky Linux", "Rocky Linux", true},
		{"Generic", "Linux", true},
		{"Amazon Linux", "Amazon Linux 2", true},
		{"Windows", "Windows", false},
		{"Empty string", "", false},
		{"Unknown OS", "FreeBSD", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsLinuxOS(tt.input)
			if result != tt.expected {
				t.Errorf("IsLinuxOS(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple name", "test-vm", "test-vm"},
		{"With spaces", "test vm", "test-vm"},
		{"With uppercase", "Test-VM", "test-vm"},
		{"With special chars", "test@vm#123", "testvm123"},
		{"With underscores", "test_vm_123", "test_vm_123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeName(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestResourceName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := ResourceName("ss", "My Disk", 80, now)
	if !strings.HasPrefix(got, "ss-my-disk-") {
		t.Errorf("Unexpected name %q", got)
	}
	long := ResourceName("ss", strings.Repeat("a", 200), 80, now)
	if len(long) != 80 {
		t.Errorf("Expected truncated name of 80 chars, got %d", len(long))
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if err := EnsureDir(dir); err != nil {
		t.Errorf("Expected EnsureDir to be idempotent, got %v", err)
	}
}
