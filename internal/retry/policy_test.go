package retry

import (
	"testing"
	"time"

	"git.home.luguber.info/inful/datapub/internal/config"
)

func TestDelayModes(t *testing.T) {
	cases := []struct {
		name   string
		policy Policy
		retry  int
		want   time.Duration
	}{
		{"fixed always initial", Policy{Mode: config.RetryBackoffFixed, Initial: 2 * time.Second, Max: time.Minute}, 5, 2 * time.Second},
		{"linear grows", Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: time.Minute}, 3, 3 * time.Second},
		{"linear capped", Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second}, 10, 2 * time.Second},
		{"exponential grows", Policy{Mode: config.RetryBackoffExponential, Initial: time.Second, Max: time.Minute}, 4, 8 * time.Second},
		{"exponential capped", Policy{Mode: config.RetryBackoffExponential, Initial: time.Second, Max: 4 * time.Second}, 10, 4 * time.Second},
		{"zero retry no delay", NewPolicy(config.RetryBackoffLinear, 0, 0, -1), 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Delay(tc.retry); got != tc.want {
				t.Fatalf("Delay(%d) = %v, want %v", tc.retry, got, tc.want)
			}
		})
	}
}

func TestNewPolicyFallsBackOnInvalid(t *testing.T) {
	p := NewPolicy("sometimes", 0, 0, -1)
	want := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second}
	if p != want {
		t.Fatalf("expected default policy, got %+v", p)
	}
}

func TestNewPolicyClampsInitialToCap(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Minute, time.Second, 3)
	if p.Initial != time.Second {
		t.Fatalf("expected initial clamped to %v, got %v", time.Second, p.Initial)
	}
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	bad := []Policy{
		{Initial: 0, Max: time.Second},
		{Initial: time.Second, Max: 0},
		{Initial: time.Second, Max: time.Second, MaxRetries: -1},
	}
	for _, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", p)
		}
	}
}
