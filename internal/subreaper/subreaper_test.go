package subreaper

import (
	"runtime"
	"testing"
)

func TestEnable_DoesNotError(t *testing.T) {
	t.Parallel()

	// Enable is safe to call repeatedly and must never error on a platform
	// lacking the capability (it becomes a no-op there).
	if err := Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := Enable(); err != nil {
		t.Fatalf("Enable (second call): %v", err)
	}
}

func TestEnabled_ReflectsEnable(t *testing.T) {
	t.Parallel()

	if err := Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	// On Linux Enabled now reports true; on other platforms it is always
	// false. Either way it must not error.
	got, err := Enabled()
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if want := runtime.GOOS == "linux"; got != want {
		t.Errorf("Enabled() = %v, want %v", got, want)
	}
}
