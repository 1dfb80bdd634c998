package kv

import (
	"errors"
	"testing"
)

func TestVersionstamp_StringParseRoundTrip(t *testing.T) {
	t.Parallel()

	var v Versionstamp
	copy(v[:], []byte{0, 0, 1, 2, 3, 4, 5, 6, 7, 8})

	s := v.String()
	got, err := ParseVersionstamp(s)
	if err != nil {
		t.Fatalf("ParseVersionstamp: %v", err)
	}
	if got != v {
		t.Fatalf("got %v, want %v", got, v)
	}
}

func TestParseVersionstamp_WrongLength(t *testing.T) {
	t.Parallel()

	_, err := ParseVersionstamp("aabb")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want %v", err, ErrNotFound)
	}
}

func TestVersionstamp_Less(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		a, b Versionstamp
		want bool
	}{
		"equal": {
			a: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			b: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			want: false,
		},
		"less": {
			a: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			b: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 2},
			want: true,
		},
		"greater": {
			a: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 2},
			b: Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			want: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.a.Less(tc.b); got != tc.want {
				t.Errorf("Less() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVersionstamp_IsZero(t *testing.T) {
	t.Parallel()

	var zero Versionstamp
	if !zero.IsZero() {
		t.Error("expected zero value to report IsZero")
	}

	nonZero := Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	if nonZero.IsZero() {
		t.Error("expected non-zero value to not report IsZero")
	}
}

func TestVersionstampFuture_UnresolvedByDefault(t *testing.T) {
	t.Parallel()

	f := &VersionstampFuture{}
	_, ok := f.Get()
	if ok {
		t.Error("expected a fresh future to be unresolved")
	}
}

func TestVersionstampFuture_ResolveThenGet(t *testing.T) {
	t.Parallel()

	f := &VersionstampFuture{}
	want := Versionstamp{0, 0, 0, 0, 0, 0, 0, 0, 0, 42}
	ResolveVersionstampFuture(f, want)

	got, ok := f.Get()
	if !ok {
		t.Fatal("expected future to be resolved")
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}
