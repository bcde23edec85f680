package index

import (
	"math"
	"sync"

	"neargo/pkg/location"
)

// Grid is a sharded geographic grid index. Cells are fixed-size squares
// in degrees; a userId lives in exactly one cell at a time. Cell state is
// sharded by cell key and each shard carries its own lock, so queries
// touching disjoint regions never contend and a radius scan only ever
// holds one shard lock at a time.
//
// Per-user placement (userId -> current cell) is sharded separately by
// userId so that updates for different users proceed concurrently while
// two concurrent updates for the same user are serialized. Lock order is
// always placement shard first, then cell shard.
type Grid struct {
	cellDeg    float64
	cols       int
	cellShards []*cellShard
	userShards []*userShard
}

type point struct {
	Lat float64
	Lng float64
}

type cellKey struct {
	X int // column, wraps at the antimeridian
	Y int // row from the south pole
}

type cellShard struct {
	mu    sync.RWMutex
	cells map[cellKey]map[string]point
}

type userShard struct {
	mu    sync.Mutex
	cells map[string]cellKey
}

// Neighbor is a fine-filtered query candidate.
type Neighbor struct {
	UserID    string
	Lat       float64
	Lng       float64
	DistanceM float64
}

const (
	numCellShards = 64
	numUserShards = 64
)

// NewGrid builds a grid with cells roughly cellSizeMeters on a side at
// the equator.
func NewGrid(cellSizeMeters float64) *Grid {
	if cellSizeMeters <= 0 {
		cellSizeMeters = 500
	}
	cellDeg := location.DegreesLat(cellSizeMeters)
	g := &Grid{
		cellDeg:    cellDeg,
		cols:       int(math.Ceil(360 / cellDeg)),
		cellShards: make([]*cellShard, numCellShards),
		userShards: make([]*userShard, numUserShards),
	}
	for i := range g.cellShards {
		g.cellShards[i] = &cellShard{cells: make(map[cellKey]map[string]point)}
	}
	for i := range g.userShards {
		g.userShards[i] = &userShard{cells: make(map[string]cellKey)}
	}
	return g
}

func (g *Grid) keyFor(lat, lng float64) cellKey {
	lng = location.WrapLng(lng)
	x := int(math.Floor((lng + 180) / g.cellDeg))
	// lng slightly below 180 can still round onto the column count
	if x >= g.cols {
		x = g.cols - 1
	}
	y := int(math.Floor((lat + 90) / g.cellDeg))
	return cellKey{X: x, Y: y}
}

func (g *Grid) cellShardFor(k cellKey) *cellShard {
	h := uint64(uint32(k.X))*0x9e3779b1 + uint64(uint32(k.Y))*0x85ebca77
	return g.cellShards[h%numCellShards]
}

func (g *Grid) userShardFor(userID string) *userShard {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(userID); i++ {
		h ^= uint64(userID[i])
		h *= 1099511628211
	}
	return g.userShards[h%numUserShards]
}

// InsertOrUpdate places userID at (lat, lng), moving it between cells if
// its position crossed a cell boundary.
func (g *Grid) InsertOrUpdate(userID string, lat, lng float64) {
	key := g.keyFor(lat, lng)
	us := g.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	if old, ok := us.cells[userID]; ok && old != key {
		g.removeFromCell(old, userID)
	}
	us.cells[userID] = key

	cs := g.cellShardFor(key)
	cs.mu.Lock()
	cell := cs.cells[key]
	if cell == nil {
		cell = make(map[string]point)
		cs.cells[key] = cell
	}
	cell[userID] = point{Lat: lat, Lng: lng}
	cs.mu.Unlock()
}

// Remove drops userID from the index. No-op if absent.
func (g *Grid) Remove(userID string) {
	us := g.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	key, ok := us.cells[userID]
	if !ok {
		return
	}
	delete(us.cells, userID)
	g.removeFromCell(key, userID)
}

func (g *Grid) removeFromCell(key cellKey, userID string) {
	cs := g.cellShardFor(key)
	cs.mu.Lock()
	if cell := cs.cells[key]; cell != nil {
		delete(cell, userID)
		if len(cell) == 0 {
			delete(cs.cells, key)
		}
	}
	cs.mu.Unlock()
}

// Contains reports whether userID is currently indexed.
func (g *Grid) Contains(userID string) bool {
	us := g.userShardFor(userID)
	us.mu.Lock()
	_, ok := us.cells[userID]
	us.mu.Unlock()
	return ok
}

// UserIDs returns a snapshot of every indexed userId. Used by the
// background reconciliation sweep.
func (g *Grid) UserIDs() []string {
	var out []string
	for _, us := range g.userShards {
		us.mu.Lock()
		for id := range us.cells {
			out = append(out, id)
		}
		us.mu.Unlock()
	}
	return out
}

// Len returns the number of indexed users.
func (g *Grid) Len() int {
	n := 0
	for _, us := range g.userShards {
		us.mu.Lock()
		n += len(us.cells)
		us.mu.Unlock()
	}
	return n
}

// QueryRadius returns every indexed user within radiusM meters of
// (lat, lng), excluding excludeID. Candidate cells are selected by
// bounding box (wrapping across the antimeridian and clamping at the
// poles); each candidate is then confirmed with an exact haversine
// check, so the result never contains false positives.
func (g *Grid) QueryRadius(lat, lng float64, radiusM float64, excludeID string) []Neighbor {
	if radiusM < 0 {
		return nil
	}
	latDelta := location.DegreesLat(radiusM)
	yMin := int(math.Floor((math.Max(lat-latDelta, -90) + 90) / g.cellDeg))
	yMax := int(math.Floor((math.Min(lat+latDelta, 90) + 90) / g.cellDeg))

	// Use the widest longitude delta across the latitude band so the
	// coarse filter never misses a candidate nearer the pole. Close to
	// the pole the band degenerates (a degree of longitude approaches
	// zero meters), so scan every column in the band instead.
	edgeLat := math.Min(math.Max(math.Abs(lat-latDelta), math.Abs(lat+latDelta)), 90)
	fullScan := math.Cos(edgeLat*math.Pi/180) < 0.01

	var xs []int
	if !fullScan {
		lngDelta := location.DegreesLng(radiusM, edgeLat)
		span := int(math.Ceil(2*lngDelta/g.cellDeg)) + 1
		if 2*lngDelta >= 360 || span >= g.cols {
			fullScan = true
		} else {
			xMin := int(math.Floor((location.WrapLng(lng-lngDelta) + 180) / g.cellDeg))
			xs = make([]int, 0, span)
			for i := 0; i < span; i++ {
				xs = append(xs, (xMin+i)%g.cols)
			}
		}
	}
	if fullScan {
		xs = make([]int, g.cols)
		for i := range xs {
			xs[i] = i
		}
	}

	var out []Neighbor
	for y := yMin; y <= yMax; y++ {
		for _, x := range xs {
			key := cellKey{X: x, Y: y}
			cs := g.cellShardFor(key)
			cs.mu.RLock()
			cell := cs.cells[key]
			members := make([]Neighbor, 0, len(cell))
			for id, p := range cell {
				members = append(members, Neighbor{UserID: id, Lat: p.Lat, Lng: p.Lng})
			}
			cs.mu.RUnlock()
			for _, m := range members {
				if m.UserID == excludeID {
					continue
				}
				d := location.HaversineM(lat, lng, m.Lat, m.Lng)
				if d <= radiusM {
					m.DistanceM = d
					out = append(out, m)
				}
			}
		}
	}
	return out
}
