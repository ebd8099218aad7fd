// Package checkpoints is the Checkpoints collaborator (§6): a read-only
// (after construction) set of height-pinned block hashes used to skip PoW
// on historical blocks and to bound how far an alternative branch may fork
// from the main chain, grounded on the corpus's checkpoints.go file loader.
package checkpoints

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/btcsuite/btcutil/base58"
)

const filename = "checkpoints.dat"

// Set holds the loaded checkpoint table plus the admission window used to
// decide whether an alternative block is allowed to fork at a given height.
type Set struct {
	byHeight map[uint64]cnbinary.Hash
	heights  []uint64
	maxZone  uint64
}

// Load reads height:hash pairs from path, one per line, '#'-prefixed
// comments and blank lines ignored. The hash may be hex (the corpus's own
// format) or base58; a 64-character string that decodes as hex is taken as
// hex, and anything else is tried as base58.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Set{byHeight: make(map[uint64]cnbinary.Hash)}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		h, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || h == 0 {
			continue
		}
		hash, ok := decodeHash(strings.TrimSpace(parts[1]))
		if !ok {
			continue
		}
		if _, exists := s.byHeight[h]; !exists {
			s.heights = append(s.heights, h)
		}
		s.byHeight[h] = hash
		if h > s.maxZone {
			s.maxZone = h
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	sort.Slice(s.heights, func(i, j int) bool { return s.heights[i] < s.heights[j] })
	return s, nil
}

func decodeHash(s string) (cnbinary.Hash, bool) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
			var h cnbinary.Hash
			copy(h[:], b)
			return h, true
		}
	}
	if b := base58.Decode(s); len(b) == 32 {
		var h cnbinary.Hash
		copy(h[:], b)
		return h, true
	}
	return cnbinary.Hash{}, false
}

// Empty returns a checkpoint set with no pinned heights, for chains run
// without a checkpoints file (e.g. a fresh testnet).
func Empty() *Set {
	return &Set{byHeight: make(map[uint64]cnbinary.Hash)}
}

// IsInCheckpointZone reports whether height falls at or below the highest
// pinned checkpoint height. The timestamp check and the key-input lookup and
// ring-signature checks are skipped inside this zone; PoW is skipped only at
// pinned heights (see CheckBlock).
func (s *Set) IsInCheckpointZone(height uint64) bool {
	return height <= s.maxZone
}

// CheckBlock reports whether hash is acceptable at height: ok is false only
// when height is pinned to a different hash. isCheckpoint reports whether
// height is itself pinned.
func (s *Set) CheckBlock(height uint64, hash cnbinary.Hash) (ok bool, isCheckpoint bool) {
	pinned, exists := s.byHeight[height]
	if !exists {
		return true, false
	}
	return pinned == hash, true
}

// IsAlternativeBlockAllowed reports whether a block at altHeight may be
// admitted as an alternative to a main chain whose current tip is at
// tipHeight. An alt block cannot fork at or below the highest checkpoint
// that the main chain has already passed, since that checkpoint pins the
// main chain's history at that height.
func (s *Set) IsAlternativeBlockAllowed(tipHeight, altHeight uint64) bool {
	if len(s.heights) == 0 {
		return true
	}
	highestPassed := uint64(0)
	for _, h := range s.heights {
		if h <= tipHeight {
			highestPassed = h
		} else {
			break
		}
	}
	return altHeight > highestPassed
}

// GetHeights returns the sorted list of pinned checkpoint heights.
func (s *Set) GetHeights() []uint64 {
	out := make([]uint64, len(s.heights))
	copy(out, s.heights)
	return out
}

// FilenameIn joins dataDir with the conventional checkpoints file name.
func FilenameIn(dataDir string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(dataDir, "/"), filename)
}
