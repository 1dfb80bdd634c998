package sandbox

import (
	"strings"
	"testing"
)

func TestCappedBuffer_WriteUnderLimit(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(100)
	n, err := c.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if got := string(c.Bytes()); got != "hello" {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}
}

func TestCappedBuffer_TruncatesExactlyOnce(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(10)
	for i := 0; i < 5; i++ {
		if _, err := c.Write([]byte("xxxx")); err != nil {
			t.Fatalf("Write %d returned error: %v", i, err)
		}
	}

	got := string(c.Bytes())
	if strings.Count(got, truncatedMarker) != 1 {
		t.Fatalf("expected exactly one truncation marker, got %q", got)
	}
	if !strings.HasPrefix(got, "xxxxxxxxxx") {
		t.Errorf("expected retained bytes up to limit, got %q", got)
	}
}

func TestCappedBuffer_NeverErrors(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(1)
	for i := 0; i < 3; i++ {
		if _, err := c.Write([]byte("overflow")); err != nil {
			t.Fatalf("Write %d returned error: %v", i, err)
		}
	}
}

func TestCappedBuffer_BytesReturnsCopy(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(100)
	_, _ = c.Write([]byte("abc"))
	b1 := c.Bytes()
	b1[0] = 'z'
	b2 := c.Bytes()
	if b2[0] != 'a' {
		t.Errorf("Bytes() snapshot mutated by caller: got %q", b2)
	}
}

func TestNewCappedBuffer_FloorsNonPositiveLimit(t *testing.T) {
	t.Parallel()

	c := newCappedBuffer(0)
	if c.limit != 1 {
		t.Errorf("limit = %d, want 1", c.limit)
	}
}
