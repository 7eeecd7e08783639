// Package common provides naming and OS helpers shared by the adapters and strategies.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var linuxDistributions = []string{
	"linux", "ubuntu", "rhel", "red hat", "centos", "almalinux", "rocky linux",
	"oracle linux", "debian", "suse", "amazon linux", "fedora",
}

// IsWindowsOS reports whether osType names a Windows family OS.
func IsWindowsOS(osType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(osType)), "windows")
}

// IsLinuxOS reports whether osType names a supported Linux distribution.
func IsLinuxOS(osType string) bool {
	s := strings.ToLower(strings.TrimSpace(osType))
	if s == "" {
		return false
	}
	for _, d := range linuxDistributions {
		if strings.Contains(s, d) {
			return true
		}
	}
	return false
}

// SanitizeName lowercases name and keeps only characters valid in cloud resource names.
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ResourceName builds "<prefix>-<name>-<base36 timestamp>", truncating name so
// the result fits in maxLen.
func ResourceName(prefix, name string, maxLen int, now time.Time) string {
	stamp := strconv.FormatInt(now.Unix(), 36)
	name = SanitizeName(name)
	room := maxLen - len(prefix) - len(stamp) - 2
	if room < 0 {
		room = 0
	}
	if len(name) > room {
		name = name[:room]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, name, stamp)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	return nil
}
