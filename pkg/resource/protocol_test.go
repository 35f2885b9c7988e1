package resource

import "testing"

func TestValidProtocolKeyBoundaries(t *testing.T) {
	cases := []struct {
		key     string
		wantErr bool
	}{
		{"ge", true},        // length 2, too short
		{"geth", false},     // ordinary key
		{"eth", false},      // exactly 3 chars
		{"GETH", true},      // uppercase not allowed
		{"geth_mainnet", true}, // underscore not allowed
		{"geth-archive", false},
	}
	for _, tc := range cases {
		err := ValidProtocolKey(tc.key)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidProtocolKey(%q) error = %v, wantErr %v", tc.key, err, tc.wantErr)
		}
	}
}

func TestValidVariantKeyBoundaries(t *testing.T) {
	if err := ValidVariantKey("ar"); err == nil {
		t.Error("expected error for variant key shorter than 3 chars")
	}
	if err := ValidVariantKey("archive"); err != nil {
		t.Errorf("unexpected error for valid variant key: %v", err)
	}
}

func TestParseSemanticVersionAndLess(t *testing.T) {
	v1, err := ParseSemanticVersion("1.13.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := ParseSemanticVersion("1.14.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v1.Less(v2) {
		t.Errorf("expected %s < %s", v1, v2)
	}
	if v2.Less(v1) {
		t.Errorf("expected %s not < %s", v2, v1)
	}
	if v1.String() != "1.13.2" {
		t.Errorf("String() = %q, want 1.13.2", v1.String())
	}
}

func TestParseSemanticVersionRejectsMalformed(t *testing.T) {
	for _, s := range []string{"1.2", "1.2.3.4", "a.b.c", ""} {
		if _, err := ParseSemanticVersion(s); err == nil {
			t.Errorf("ParseSemanticVersion(%q) expected error", s)
		}
	}
}
