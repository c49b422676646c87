// ABOUTME: Tests for version constants
// ABOUTME: Checks the values sent as sdkVersion and protocolVersion
package version

import (
	"strconv"
	"strings"
	"testing"
)

func TestSDKVersion(t *testing.T) {
	got := SDKVersion()
	product, release, ok := strings.Cut(got, "/")
	if !ok || product != Product || release != Version {
		t.Errorf("expected %s/%s, got %s", Product, Version, got)
	}

	parts := strings.Split(Version, ".")
	if len(parts) != 3 {
		t.Fatalf("expected major.minor.patch, got %q", Version)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			t.Errorf("version part %q is not numeric", p)
		}
	}
}

func TestProtocolVersion(t *testing.T) {
	if _, err := strconv.Atoi(ProtocolVersion); err != nil {
		t.Errorf("protocol version %q is not a revision number: %v", ProtocolVersion, err)
	}
}
