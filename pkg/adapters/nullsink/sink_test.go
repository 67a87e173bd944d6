package nullsink

import (
	"context"
	"testing"
)

func TestSink_Discards(t *testing.T) {
	s := New()
	loc, err := s.Save(context.Background(), "a.zip", []byte("1234"))
	if err != nil || loc != "" {
		t.Fatalf("expected empty location and no error, got %q, %v", loc, err)
	}
	s.Save(context.Background(), "b.zip", []byte("56"))

	files, bytes := s.Totals()
	if files != 2 || bytes != 6 {
		t.Errorf("expected 2 files and 6 bytes, got %d/%d", files, bytes)
	}
}
