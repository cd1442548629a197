package executor

import (
	"fmt"
	"regexp"

	"github.com/blockdelete/blockdelete/internal/player"
)

const (
	DefaultFillMaxBlocks = 32768
	DefaultDimension     = "minecraft:overworld"
)

var blockPattern = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_./-]+$`)

// YRange is an inclusive vertical span.
type YRange struct {
	Min int
	Max int
}

// DefaultYLimits are the vanilla build limits per dimension.
func DefaultYLimits() map[string]YRange {
	return map[string]YRange{
		"minecraft:overworld":  {Min: -64, Max: 319},
		"minecraft:the_nether": {Min: 0, Max: 127},
		"minecraft:the_end":    {Min: 0, Max: 255},
	}
}

// Region is the cuboid cleared for one block id, split into vertical segments.
type Region struct {
	Dimension string
	ChunkX    int
	ChunkZ    int
	X1, Z1    int
	X2, Z2    int
	Segments  []YRange
}

// ChunkRegion returns the full-height region of the chunk containing pos.
func ChunkRegion(pos player.Position, dimension string, limits map[string]YRange, fillMaxBlocks int) Region {
	if dimension == "" {
		dimension = DefaultDimension
	}
	x1, z1 := player.ChunkOrigin(pos.X), player.ChunkOrigin(pos.Z)
	cx, cz := pos.Chunk()
	y := resolveYLimits(dimension, limits)
	return Region{
		Dimension: dimension,
		ChunkX:    cx,
		ChunkZ:    cz,
		X1:        x1,
		Z1:        z1,
		X2:        x1 + player.ChunkSize - 1,
		Z2:        z1 + player.ChunkSize - 1,
		Segments:  Segments(y.Min, y.Max, fillMaxBlocks),
	}
}

// resolveYLimits falls back to the overworld range for unknown dimensions.
func resolveYLimits(dimension string, limits map[string]YRange) YRange {
	if r, ok := limits[dimension]; ok {
		return r
	}
	if r, ok := limits[DefaultDimension]; ok {
		return r
	}
	return DefaultYLimits()[DefaultDimension]
}

// Segments splits [yMin, yMax] so no fill over a 16x16 column exceeds fillMaxBlocks.
func Segments(yMin, yMax, fillMaxBlocks int) []YRange {
	if fillMaxBlocks <= 0 {
		fillMaxBlocks = DefaultFillMaxBlocks
	}
	height := fillMaxBlocks / (player.ChunkSize * player.ChunkSize)
	if height < 1 {
		height = 1
	}

	var out []YRange
	for start := yMin; start <= yMax; {
		end := min(yMax, start+height-1)
		out = append(out, YRange{Min: start, Max: end})
		start = end + 1
	}
	return out
}

// Commands renders one fill per segment replacing block with air.
func (r Region) Commands(block string) []string {
	out := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		out = append(out, fmt.Sprintf(
			"execute in %s run fill %d %d %d %d %d %d air replace %s",
			r.Dimension, r.X1, seg.Min, r.Z1, r.X2, seg.Max, r.Z2, block,
		))
	}
	return out
}

// ValidBlockID reports whether id is a namespaced block id safe to splice into a command.
func ValidBlockID(id string) bool {
	return blockPattern.MatchString(id)
}
