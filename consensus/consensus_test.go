package consensus

import "testing"

func testParams() *Params {
	return &Params{
		DifficultyWindow:       10,
		DifficultyCut:          2,
		TargetSeconds:          120,
		MinimumDifficulty:      1,
		MoneySupply:            1 << 40,
		EmissionSpeedFactor:    5,
		RewardBlocksWindow:     5,
		RewardZoneByVersion:    map[uint8]uint64{1: 20000},
		DefaultRewardZone:      20000,
		MinedMoneyUnlockWindow: 10,
		Upgrades: []Upgrade{
			{MajorVersion: 1, Height: 0},
			{MajorVersion: 2, Height: 100},
		},
	}
}

func TestVersionAt(t *testing.T) {
	p := testParams()
	if v := p.VersionAt(1); v != 1 {
		t.Fatalf("version at 1 = %d, want 1", v)
	}
	if v := p.VersionAt(100); v != 1 {
		t.Fatalf("version at 100 = %d, want 1 (upgrade height must be strictly less)", v)
	}
	if v := p.VersionAt(101); v != 2 {
		t.Fatalf("version at 101 = %d, want 2", v)
	}
}

func TestNextDifficultySingleSampleUsesMinimum(t *testing.T) {
	p := testParams()
	timestamps := make([]int64, 0)
	cumDiffs := make([]uint64, 0)
	for i := 0; i < 1; i++ {
		timestamps = append(timestamps, int64(i))
		cumDiffs = append(cumDiffs, uint64(i))
	}
	if d := p.NextDifficulty(timestamps, cumDiffs); d != p.MinimumDifficulty {
		t.Fatalf("difficulty with <=1 sample = %d, want minimum %d", d, p.MinimumDifficulty)
	}
}

func TestNextDifficultyTracksWork(t *testing.T) {
	p := testParams()
	var timestamps []int64
	var cumDiffs []uint64
	for i := 0; i < 12; i++ {
		timestamps = append(timestamps, int64(i*120))
		cumDiffs = append(cumDiffs, uint64(i*1000))
	}

	d := p.NextDifficulty(timestamps, cumDiffs)
	if d == 0 {
		t.Fatal("expected a positive next difficulty")
	}
	// With steady 120s spacing and TargetSeconds=120, next difficulty
	// should track the per-block difficulty of 1000 closely.
	if d < 900 || d > 1100 {
		t.Fatalf("next difficulty = %d, want close to 1000", d)
	}
}

func TestBaseRewardDecreasesAsSupplyGrows(t *testing.T) {
	p := testParams()
	r1 := p.BaseReward(0)
	r2 := p.BaseReward(p.MoneySupply / 2)
	if r2 >= r1 {
		t.Fatalf("reward should shrink as supply is generated: r1=%d r2=%d", r1, r2)
	}
	if p.BaseReward(p.MoneySupply) != 0 {
		t.Fatal("reward should be zero once supply is exhausted")
	}
}

func TestRewardAppliesQuadraticPenalty(t *testing.T) {
	p := testParams()
	medianSize := p.RewardFullZone(1)

	unpenalized := p.Reward(0, medianSize, medianSize, 0, 1)
	penalized := p.Reward(0, medianSize*2, medianSize, 0, 1)

	if penalized >= unpenalized {
		t.Fatalf("oversized block should be penalized: unpenalized=%d penalized=%d", unpenalized, penalized)
	}
	if penalized != 0 {
		t.Fatalf("a block at exactly 2x median should be penalized to zero, got %d", penalized)
	}
}

func TestRewardAddsFees(t *testing.T) {
	p := testParams()
	base := p.Reward(0, 100, p.RewardFullZone(1), 0, 1)
	withFees := p.Reward(0, 100, p.RewardFullZone(1), 500, 1)
	if withFees != base+500 {
		t.Fatalf("reward with fees = %d, want %d", withFees, base+500)
	}
}

func TestNextBlockSizeLimit(t *testing.T) {
	p := testParams()
	limit := p.NextBlockSizeLimit([]uint64{100, 200, 300}, 1)
	if limit != p.RewardFullZone(1)*2 {
		t.Fatalf("limit = %d, want 2x reward zone when median is below the zone", limit)
	}

	big := []uint64{30000, 40000, 50000}
	limit = p.NextBlockSizeLimit(big, 1)
	if limit != MedianBlockSize(big)*2 {
		t.Fatalf("limit = %d, want 2x median when median exceeds the zone", limit)
	}
}

func TestMedianBlockSize(t *testing.T) {
	if m := MedianBlockSize([]uint64{1, 2, 3}); m != 2 {
		t.Fatalf("median of odd set = %d, want 2", m)
	}
	if m := MedianBlockSize([]uint64{1, 2, 3, 4}); m != 2 {
		t.Fatalf("median of even set = %d, want 2 (truncated average)", m)
	}
	if m := MedianBlockSize(nil); m != 0 {
		t.Fatalf("median of empty set = %d, want 0", m)
	}
}
