package config

import (
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/checkpoints"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/crypto"
)

// NetParams bundles everything that differs between the networks this
// config can select: the consensus constant table, the fixed genesis
// block, and the checkpoint set seeded at startup. The Go analogue of
// dagconfig.Params, narrowed to the fields consensus.Params/
// checkpoints.Set actually carry rather than that file's full
// network-identity struct (magic bytes, DNS seeds, RPC port): this
// module has no P2P discovery layer for those fields to configure.
type NetParams struct {
	Name string

	Consensus   *consensus.Params
	Checkpoints []CheckpointEntry

	// FoundationKey receives the genesis block's entire coinbase
	// output; it has no corresponding private key in this exercise,
	// since nothing ever needs to spend it.
	FoundationKey crypto.PublicKey
}

// CheckpointEntry is one height/hash pair a NetParams seeds
// checkpoints.Set with at startup.
type CheckpointEntry struct {
	Height uint64
	Hash   crypto.Hash
}

// MainNetParams mirrors the classic CryptoNote currency constants
// spec section 4.E describes: two-minute blocks, an 11-block
// difficulty window with the top/bottom outlier trimmed from each
// end, and a reward curve that halves roughly every ln(2)*2^20
// (about 727,000) blocks.
func MainNetParams() *NetParams {
	var foundationKey crypto.PublicKey
	foundationKey[0] = 0x01

	return &NetParams{
		Name: "mainnet",
		Consensus: &consensus.Params{
			DifficultyWindow:       11,
			DifficultyCut:          1,
			TargetSeconds:          120,
			MinimumDifficulty:      1,
			MoneySupply:            1 << 63,
			EmissionSpeedFactor:    20,
			RewardBlocksWindow:     100,
			RewardZoneByVersion:    map[uint8]uint64{},
			DefaultRewardZone:      20000,
			MinedMoneyUnlockWindow: 60,
		},
		FoundationKey: foundationKey,
	}
}

// TestNetParams relaxes MainNetParams for a throwaway development
// network: a shorter coinbase-maturity window and a short difficulty
// window make it practical to produce many blocks by hand while
// exercising the daemon.
func TestNetParams() *NetParams {
	p := MainNetParams()
	p.Name = "testnet"
	p.Consensus.DifficultyWindow = 3
	p.Consensus.DifficultyCut = 0
	p.Consensus.MinedMoneyUnlockWindow = 2
	return p
}

// CheckpointSet builds a checkpoints.Set seeded with every entry this
// NetParams names.
func (p *NetParams) CheckpointSet() (*checkpoints.Set, error) {
	set := checkpoints.New()
	for _, c := range p.Checkpoints {
		if err := set.Add(c.Height, c.Hash); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// GenesisBlock builds the network's fixed genesis block: a single
// coinbase transaction paying the network's entire initial emission to
// FoundationKey, wrapped in a template with no parent and a fixed
// timestamp. AddGenesis bypasses proof-of-work and difficulty checks
// entirely for this block (spec section 4.C's genesis special case),
// so no nonce-search ever has to run the way the teacher's
// cmd/genesis/genesis.go solves its own genesis blocks.
func (p *NetParams) GenesisBlock() *blockmodel.RawBlock {
	coinbase := &blockmodel.Transaction{
		Inputs: []blockmodel.Input{
			{Kind: blockmodel.InputCoinbase, CoinbaseHeight: 0},
		},
		Outputs: []blockmodel.Output{
			{Amount: p.Consensus.MoneySupply >> p.Consensus.EmissionSpeedFactor, TargetKind: blockmodel.OutputKey, Key: p.FoundationKey},
		},
	}

	tpl := &blockmodel.BlockTemplate{
		MajorVersion: 1,
		MinorVersion: 0,
		Timestamp:    1700000000,
		Coinbase:     coinbase,
	}

	return &blockmodel.RawBlock{
		TemplateBytes: blockmodel.EncodeBlockTemplate(tpl),
		TxBytes:       nil,
	}
}
