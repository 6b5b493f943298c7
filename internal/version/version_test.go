package version

import (
	"strings"
	"testing"
)

func TestInfo_DefaultsWithoutLdflags(t *testing.T) {
	v, c, d := Info()
	if v != "dev" {
		t.Errorf("version = %q, want dev when built without ldflags", v)
	}
	if c == "" || d == "" {
		t.Error("commit and date must have defaults")
	}
}

func TestString_CarriesAllFields(t *testing.T) {
	s := String()
	v, c, d := Info()

	for _, part := range []string{"version=" + v, "commit=" + c, "date=" + d} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
