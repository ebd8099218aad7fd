// Package currency holds the per-major-version consensus constants and the
// pure functions derived from them (difficulty, reward, proof-of-work
// target check, block-size limits, unlock-time maturity) that the chain
// manager and validation kernel treat as a trusted collaborator (§6:
// "Currency config").
package currency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aivve/karbowanec/cnbinary"
)

// UpgradeHeight pins the height at which a major version takes effect.
type UpgradeHeight struct {
	MajorVersion uint8
	Height       uint64
}

// Config is the currency collaborator described in §6. Every method is a
// pure function of the config plus its explicit arguments — no hidden
// global state, following the corpus's pattern of passing collaborators
// into constructors rather than reaching for package globals.
type Config struct {
	UpgradeHeights []UpgradeHeight

	// Difficulty window: number of preceding blocks folded into the next
	// difficulty calculation (§4.4).
	DifficultyWindow uint64
	// Target inter-block time in seconds.
	DifficultyTarget uint64
	MinDifficulty    uint64

	// Timestamp validation (§4.2.1 step 5).
	TimestampCheckWindow  uint64
	BlockFutureTimeLimit  uint64

	// Coinbase maturity / reward (§4.2.1 steps 8, 11).
	MinedMoneyUnlockWindow uint64
	RewardBlocksWindow     uint64
	GrantedFullRewardZone  uint64
	MaxBlockCumulativeSize uint64
	MoneySupply            uint64
	EmissionSpeedFactor    uint64

	// Locked-tx maturity deltas (§4.6).
	LockedTxAllowedDeltaBlocks  uint64
	LockedTxAllowedDeltaSeconds uint64

	// Poisson reorg sanity gate (§4.3, §9 open-question resolution: these
	// are config tunables, not module constants).
	PoissonCheckTrigger  int
	PoissonCheckDepth    int
	PoissonLogThreshold  float64

	// Merge-mining tag rejection (§1 Non-goals, §4.2.1 step 4): versions at
	// or above this reject a merge-mining tag in extra.
	MergeMiningRejectVersion uint8
}

// MainNetConfig returns the production parameter set, grounded on Karbo's
// published mainnet constants (difficulty/timestamp windows, reward window,
// unlock deltas) with the LWMA-style target carried over from the teacher's
// own block.go constants (5-minute blocks).
func MainNetConfig() *Config {
	return &Config{
		UpgradeHeights: []UpgradeHeight{
			{MajorVersion: 1, Height: 0},
			{MajorVersion: 4, Height: 100000},
			{MajorVersion: 5, Height: 200000},
		},
		DifficultyWindow: 60,
		DifficultyTarget: 300,
		MinDifficulty:    4,

		TimestampCheckWindow: 60,
		BlockFutureTimeLimit: 7200,

		MinedMoneyUnlockWindow: 60,
		RewardBlocksWindow:     100,
		GrantedFullRewardZone:  20000,
		MaxBlockCumulativeSize: 500000000,
		MoneySupply:            ^uint64(0) / 2,
		EmissionSpeedFactor:    18,

		LockedTxAllowedDeltaBlocks:  1,
		LockedTxAllowedDeltaSeconds: 3600,

		PoissonCheckTrigger: 5,
		PoissonCheckDepth:   15,
		PoissonLogThreshold: -75.0,

		MergeMiningRejectVersion: 5,
	}
}

// TestNetConfig loosens timing windows for integration tests while keeping
// the same structural constants.
func TestNetConfig() *Config {
	c := MainNetConfig()
	c.DifficultyWindow = 10
	c.MinDifficulty = 1
	c.RewardBlocksWindow = 10
	c.MinedMoneyUnlockWindow = 2
	c.UpgradeHeights = []UpgradeHeight{{MajorVersion: 1, Height: 0}}
	return c
}

// LoadOverrides reads a JSON file at path decoding into a copy of base,
// overriding only the fields present in the file (§10.3: integration tests
// take a preset config and tweak a handful of windows/thresholds rather than
// restating the whole struct). Grounded on checkpoints.Load's plain
// os.Open-then-decode shape; unlike checkpoints.Load this decodes a single
// JSON document instead of scanning lines, since encoding/json is already
// the corpus's own choice for structured file formats elsewhere in the tree.
func LoadOverrides(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("currency: open config overrides %s: %w", path, err)
	}
	defer f.Close()

	cfg := *base
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("currency: decode config overrides %s: %w", path, err)
	}
	return &cfg, nil
}

// BlockMajorVersion returns the major version required at height per the
// configured upgrade schedule (§9: "implementer may safely treat the
// version schedule as fully determined by configured upgradeHeight values").
func (c *Config) BlockMajorVersion(height uint64) uint8 {
	best := uint8(1)
	bestHeight := uint64(0)
	for _, u := range c.UpgradeHeights {
		if height >= u.Height && u.Height >= bestHeight {
			best = u.MajorVersion
			bestHeight = u.Height
		}
	}
	return best
}

// DifficultyBlocksCountByVersion returns the window size used by the
// difficulty calculator (§4.4); currently uniform across versions, but kept
// as a version-aware function since the original schedules it per version.
func (c *Config) DifficultyBlocksCountByVersion(majorVersion uint8) uint64 {
	return c.DifficultyWindow
}

// TimestampCheckWindowByVersion mirrors DifficultyBlocksCountByVersion for
// the median-timestamp check window.
func (c *Config) TimestampCheckWindowByVersion(majorVersion uint8) uint64 {
	return c.TimestampCheckWindow
}

func (c *Config) BlockFutureTimeLimitByVersion(majorVersion uint8) uint64 {
	return c.BlockFutureTimeLimit
}

// HasMergeMiningTag reports whether a transaction's extra TLV stream
// contains a merge-mining tag (§4.2.1 step 4). The tag is a single-byte
// discriminator (0x03 in the CryptoNote extra-field convention) followed by
// a fixed-size merge-mining-info payload.
func HasMergeMiningTag(extra []byte) bool {
	const tagMergeMining = 0x03
	for i := 0; i < len(extra); {
		tag := extra[i]
		if tag == tagMergeMining {
			return true
		}
		i++
		if i >= len(extra) {
			break
		}
		// Unknown/other tags: skip a length-prefixed payload if present,
		// otherwise bail out rather than mis-parse.
		size, n, err := cnbinary.ReadVarint(extra, i)
		if err != nil {
			break
		}
		i = n + int(size)
	}
	return false
}
