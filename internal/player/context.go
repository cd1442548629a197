// Package player tracks where the configured player stands on the server.
package player

import (
	"math"
	"time"
)

// ChunkSize is the horizontal edge of one chunk in blocks.
const ChunkSize = 16

// Position is a player's world coordinates.
type Position struct {
	X, Y, Z float64
}

// Chunk returns the chunk coordinates containing p.
func (p Position) Chunk() (int, int) {
	return chunkIndex(p.X), chunkIndex(p.Z)
}

// ChunkOrigin returns the lowest block coordinate of the chunk containing v.
func ChunkOrigin(v float64) int {
	return chunkIndex(v) * ChunkSize
}

func chunkIndex(v float64) int {
	block := int(math.Floor(v))
	idx := block / ChunkSize
	if block%ChunkSize < 0 {
		idx--
	}
	return idx
}

// Context is the last known location of one player. Values are copies; only the Locator
// produces new ones.
type Context struct {
	Name        string
	Position    *Position
	Dimension   string
	LastUpdated time.Time
}

// Fresh reports whether a position is known and no older than maxAge.
func (c Context) Fresh(now time.Time, maxAge time.Duration) bool {
	if c.Position == nil || c.LastUpdated.IsZero() {
		return false
	}
	age := now.Sub(c.LastUpdated)
	return age >= 0 && age <= maxAge
}

func (c Context) clone() Context {
	if c.Position != nil {
		p := *c.Position
		c.Position = &p
	}
	return c
}
