package scheduler

import "testing"

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		state State
		want  string
	}{
		"idle":        {state: Idle, want: "idle"},
		"discovering": {state: Discovering, want: "discovering"},
		"selecting":   {state: Selecting, want: "selecting"},
		"preparing":   {state: Preparing, want: "preparing"},
		"running":     {state: Running, want: "running"},
		"reporting":   {state: Reporting, want: "reporting"},
		"retiring":    {state: Retiring, want: "retiring"},
		"unknown":     {state: State(255), want: "unknown"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.state.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
