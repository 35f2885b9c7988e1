package id

import "testing"

func TestHostIDRoundTrip(t *testing.T) {
	h := NewHostID()
	parsed, err := ParseHostID(h.String())
	if err != nil {
		t.Fatalf("ParseHostID: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: got %v, want %v", parsed, h)
	}
}

func TestParseHostIDRejectsGarbage(t *testing.T) {
	if _, err := ParseHostID("not-a-uuid"); err == nil {
		t.Fatal("expected error parsing invalid host id")
	}
}

func TestDistinctKindsDoNotCollideInType(t *testing.T) {
	// HostID and NodeID are distinct Go types even though they wrap the same
	// underlying representation — this is enforced at compile time, this
	// test only documents that their zero values are both "nil".
	var h HostID
	var n NodeID
	if !h.IsNil() || !n.IsNil() {
		t.Fatal("zero-value ids should be nil")
	}
}

func TestScanAndValue(t *testing.T) {
	h := NewHostID()
	v, err := h.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned HostID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned != h {
		t.Fatalf("scan mismatch: got %v, want %v", scanned, h)
	}
}
