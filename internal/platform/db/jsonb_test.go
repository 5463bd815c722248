package db

import "testing"

func TestJSONB_NilBecomesNull(t *testing.T) {
	var segments []string
	b, err := JSONB(segments)
	if err != nil || b != nil {
		t.Errorf("expected nil bytes for nil slice, got %q %v", b, err)
	}
	b, _ = JSONB(nil)
	if b != nil {
		t.Errorf("expected nil bytes for nil, got %q", b)
	}
}

func TestJSONB_RoundTrip(t *testing.T) {
	b, err := JSONB([]string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out []string
	if err := ScanJSONB(b, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[1] != "b" {
		t.Errorf("unexpected round trip: %v", out)
	}
}

func TestScanJSONB_NullLeavesDst(t *testing.T) {
	out := []string{"keep"}
	if err := ScanJSONB(nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected dst untouched, got %v", out)
	}
}
