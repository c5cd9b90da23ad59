package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/testutil"
)

var guardAddresses = []string{
	"0x1000000000000000000000000000000000000001",
	"0x1000000000000000000000000000000000000002",
	"0x1000000000000000000000000000000000000003",
	"0x1000000000000000000000000000000000000004",
	"0x1000000000000000000000000000000000000005",
}

var guardIDs = []string{
	"00000000-0000-4000-8000-000000000001",
	"00000000-0000-4000-8000-000000000002",
	"00000000-0000-4000-8000-000000000003",
	"00000000-0000-4000-8000-000000000004",
	"00000000-0000-4000-8000-000000000005",
}

func guardTreasuries() []entities.Treasury {
	out := make([]entities.Treasury, len(guardAddresses))
	for i := range guardAddresses {
		out[i] = *testutil.CreateTestTreasury(
			testutil.TreasuryWithID(guardIDs[i]),
			testutil.TreasuryWithAddress(guardAddresses[i]),
		)
	}
	return out
}

func TestStaleGuard_Check(t *testing.T) {
	chain := testutil.NewMockChain(0)
	chain.Code[common.HexToAddress(guardAddresses[0])] = []byte{0x60, 0x80}
	chain.CodeErrs[common.HexToAddress(guardAddresses[2])] = errors.New("timeout")

	guard := NewStaleGuard(chain, 2, zap.NewNop())
	checks := guard.Check(context.Background(), guardTreasuries()[:3])

	want := []Liveness{LivenessLive, LivenessGone, LivenessUnknown}
	for i, c := range checks {
		if c.State != want[i] {
			t.Errorf("check %d: expected %s, got %s", i, want[i], c.State)
		}
		if c.TreasuryID != guardIDs[i] {
			t.Errorf("check %d: results out of order", i)
		}
	}
	if checks[2].Err == nil {
		t.Error("expected transport error kept on unknown check")
	}
}

func TestStaleGuard_Decide(t *testing.T) {
	live := func(id string) LivenessCheck { return LivenessCheck{TreasuryID: id, State: LivenessLive} }
	gone := func(id string) LivenessCheck { return LivenessCheck{TreasuryID: id, State: LivenessGone} }
	unknown := func(id string) LivenessCheck { return LivenessCheck{TreasuryID: id, State: LivenessUnknown} }

	tests := []struct {
		name       string
		checks     []LivenessCheck
		candidates int
		reason     string
	}{
		{"no treasuries", nil, 0, ""},
		{"all gone", []LivenessCheck{gone("a"), gone("b"), gone("c"), gone("d"), gone("e")}, 0, GuardAllGone},
		{"all unknown", []LivenessCheck{unknown("a"), unknown("b")}, 0, GuardNoLiveCheck},
		{"gone and unknown, none live", []LivenessCheck{gone("a"), unknown("b")}, 0, GuardAllGone},
		{"mixed", []LivenessCheck{live("a"), gone("b"), unknown("c"), gone("d")}, 2, ""},
		{"all live", []LivenessCheck{live("a"), live("b")}, 0, ""},
	}

	guard := NewStaleGuard(testutil.NewMockChain(0), 1, zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := guard.Decide(tt.checks)
			if len(d.Candidates) != tt.candidates {
				t.Errorf("expected %d candidates, got %v", tt.candidates, d.Candidates)
			}
			if d.AbortReason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, d.AbortReason)
			}
			if d.Candidates == nil {
				t.Error("candidates must serialize as an empty list")
			}
		})
	}
}

func TestStaleGuard_UnknownNeverGone(t *testing.T) {
	guard := NewStaleGuard(testutil.NewMockChain(0), 1, zap.NewNop())
	d := guard.Decide([]LivenessCheck{
		{TreasuryID: "a", State: LivenessLive},
		{TreasuryID: "b", State: LivenessUnknown},
	})

	if len(d.Candidates) != 0 {
		t.Errorf("expected unknown check not submitted, got %v", d.Candidates)
	}
}
