// Package consensus implements component E of the spec: difficulty
// retargeting, the block reward curve, the next-block size limit, and
// the upgrade manager. The formulas are grounded on the classic
// CryptoNote currency parameters (no longer present in the retrieval
// pack's filtered original_source, but implied by spec section 4.E's
// description and standard across the family); the constant-table
// shape mirrors the teacher's dagconfig/params.go per-network Params
// struct, and big.Int arithmetic mirrors that file's use of big.Int
// for proof-of-work limits.
package consensus

// Upgrade is one entry of the monotone upgrade table of spec section
// 4.E: a major version becomes active strictly after Height.
type Upgrade struct {
	MajorVersion uint8
	Height       uint64
}

// Params is a network's consensus constant table, the Go analogue of
// dagconfig.Params for this currency family.
type Params struct {
	// Difficulty retarget window: the last DifficultyWindow blocks are
	// considered, with DifficultyCut outliers trimmed from each end of
	// the sorted timestamp window before averaging.
	DifficultyWindow  int
	DifficultyCut     int
	TargetSeconds     int64
	MinimumDifficulty uint64

	// Emission curve: base_reward = (MoneySupply - alreadyGenerated) >>
	// EmissionSpeedFactor.
	MoneySupply         uint64
	EmissionSpeedFactor uint

	// RewardBlocksWindow is the number of trailing blocks whose sizes
	// are medianed for both the size-limit rule and the reward
	// penalty's "median size" term.
	RewardBlocksWindow int

	// RewardZoneByVersion maps a major version to its
	// reward_full_zone; versions absent from the map fall back to
	// DefaultRewardZone.
	RewardZoneByVersion map[uint8]uint64
	DefaultRewardZone   uint64

	MinedMoneyUnlockWindow uint64

	// Upgrades is kept sorted ascending by Height.
	Upgrades []Upgrade
}

// VersionAt returns the major version mandated for height, per spec
// section 4.E: the greatest version whose upgrade height is strictly
// less than h, defaulting to 1.
func (p *Params) VersionAt(h uint64) uint8 {
	var version uint8 = 1
	for _, u := range p.Upgrades {
		if u.Height < h {
			version = u.MajorVersion
		}
	}
	return version
}

// RewardFullZone returns the reward_full_zone for a major version.
func (p *Params) RewardFullZone(version uint8) uint64 {
	if zone, ok := p.RewardZoneByVersion[version]; ok {
		return zone
	}
	return p.DefaultRewardZone
}
