package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestCurrentIsSemverWithoutVPrefix(t *testing.T) {
	semver := regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	if !semver.MatchString(Current) {
		t.Fatalf("Current=%q must match <major>.<minor>.<patch>", Current)
	}
}

func TestString(t *testing.T) {
	got := String()
	if !strings.HasPrefix(got, Name+" ") || !strings.HasSuffix(got, Current) {
		t.Fatalf("String()=%q, want %q followed by %q", got, Name, Current)
	}
}
