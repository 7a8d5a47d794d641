package dispatch

import (
	"errors"
	"testing"

	"github.com/pithecene-io/sluice/types"
)

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Strategy
		err  bool
	}{
		{name: "empty selects default", in: "", want: StrategyHybrid},
		{name: "hybrid", in: "hybrid", want: StrategyHybrid},
		{name: "all-parallel", in: "all-parallel", want: StrategyAllParallel},
		{name: "all-sequential", in: "all-sequential", want: StrategyAllSequential},
		{name: "unknown rejected", in: "turbo", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStrategy(tc.in)
			if tc.err {
				if !errors.Is(err, ErrUnknownStrategy) {
					t.Fatalf("expected ErrUnknownStrategy, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassify_Hybrid(t *testing.T) {
	cases := []struct {
		name     string
		it       types.Intent
		wantLane types.Lane
		conflict bool
	}{
		{name: "concurrent tag", it: concIntent{}, wantLane: types.LaneParallel},
		{name: "sequential tag", it: seqIntent{}, wantLane: types.LaneSequential},
		{name: "untagged", it: plainIntent{}, wantLane: types.LaneGrouped},
		{name: "both tags", it: bothIntent{}, wantLane: types.LaneGrouped, conflict: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lane, conflict := Classify(tc.it, StrategyHybrid)
			if lane != tc.wantLane {
				t.Errorf("expected lane %q, got %q", tc.wantLane, lane)
			}
			if conflict != tc.conflict {
				t.Errorf("expected conflict=%v, got %v", tc.conflict, conflict)
			}
		})
	}
}

func TestClassify_OverridesIgnoreTags(t *testing.T) {
	intents := []types.Intent{concIntent{}, seqIntent{}, plainIntent{}, bothIntent{}}

	for _, it := range intents {
		if lane, _ := Classify(it, StrategyAllParallel); lane != types.LaneParallel {
			t.Errorf("all-parallel: expected parallel lane for %T, got %q", it, lane)
		}
		if lane, _ := Classify(it, StrategyAllSequential); lane != types.LaneSequential {
			t.Errorf("all-sequential: expected sequential lane for %T, got %q", it, lane)
		}
	}
}

func TestClassify_ConflictReportedUnderOverrides(t *testing.T) {
	for _, s := range Strategies() {
		if _, conflict := Classify(bothIntent{}, s); !conflict {
			t.Errorf("strategy %q: expected conflict for dual-tagged intent", s)
		}
		if _, conflict := Classify(concIntent{}, s); conflict {
			t.Errorf("strategy %q: unexpected conflict for single-tagged intent", s)
		}
	}
}
