package imagemod

import (
	"path/filepath"
	"testing"
)

func gateConfig(t *testing.T, pol Policy) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		Policy:    pol,
		Allowlist: NewHashStore(filepath.Join(dir, "allow.txt")),
		Blocklist: NewHashStore(filepath.Join(dir, "block.txt")),
	}
}

func TestCheckGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		inAllow bool
		inBlock bool
		policy  ShortCircuitPolicy
		want    GateOutcome
	}{
		{
			name:    "unknown hash yields no decision",
			policy:  ShortCircuitPolicy{Allow: true, Block: true},
			want:    GateNone,
		},
		{
			name:    "allowlist member short-circuits OK",
			inAllow: true,
			policy:  ShortCircuitPolicy{Allow: true, Block: true},
			want:    GateAllow,
		},
		{
			name:    "blocklist member short-circuits BLOCK",
			inBlock: true,
			policy:  ShortCircuitPolicy{Allow: true, Block: true},
			want:    GateBlock,
		},
		{
			name:    "blocklist wins a double match",
			inAllow: true,
			inBlock: true,
			policy:  ShortCircuitPolicy{Allow: true, Block: true},
			want:    GateBlock,
		},
		{
			name:    "allow short-circuit disabled",
			inAllow: true,
			policy:  ShortCircuitPolicy{Allow: false, Block: true},
			want:    GateNone,
		},
		{
			name:    "block short-circuit disabled",
			inBlock: true,
			policy:  ShortCircuitPolicy{Allow: true, Block: false},
			want:    GateNone,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pol := DefaultPolicy()
			pol.ShortCircuit = tc.policy
			cfg := gateConfig(t, pol)

			h := hashOf(t, 0xdeadbeef)
			if tc.inAllow {
				if _, err := cfg.Allowlist.Append(h, "ok"); err != nil {
					t.Fatal(err)
				}
			}
			if tc.inBlock {
				if _, err := cfg.Blocklist.Append(h, "not_ok"); err != nil {
					t.Fatal(err)
				}
			}

			got := cfg.checkGate(h)
			if got.Outcome != tc.want {
				t.Errorf("checkGate outcome = %v, want %v", got.Outcome, tc.want)
			}
		})
	}
}

func TestCheckGateNearDuplicate(t *testing.T) {
	t.Parallel()

	pol := DefaultPolicy()
	pol.MaxHashDistance = 4
	cfg := gateConfig(t, pol)

	if _, err := cfg.Blocklist.Append(hashOf(t, 0b11110000), "not_ok"); err != nil {
		t.Fatal(err)
	}

	// Two bits flipped: within tolerance.
	got := cfg.checkGate(hashOf(t, 0b11000000))
	if got.Outcome != GateBlock {
		t.Fatalf("outcome = %v, want GateBlock", got.Outcome)
	}
	if got.Distance != 2 {
		t.Errorf("distance = %d, want 2", got.Distance)
	}
}

func TestCheckGateNilStores(t *testing.T) {
	t.Parallel()

	cfg := &Config{Policy: DefaultPolicy()}
	if got := cfg.checkGate(hashOf(t, 1)); got.Outcome != GateNone {
		t.Errorf("outcome = %v, want GateNone with nil stores", got.Outcome)
	}
}
