// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"strings"
	"testing"
)

func TestVersionDefined(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if len(Version) > 100 {
		t.Error("Version string is unreasonably long")
	}
}

func TestProductDefined(t *testing.T) {
	if Product == "" || Manufacturer == "" {
		t.Error("Product and Manufacturer should not be empty")
	}
	if strings.ContainsAny(Product, " \t\n") {
		t.Errorf("Product %q should be a single token", Product)
	}
}
