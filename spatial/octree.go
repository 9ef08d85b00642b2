package spatial

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chewxy/math32"
)

// Octree Spatial Index
//
// A dynamic octree implementing the Partition interface. The particularities
// are:
//   - objects live in a slot arena and nodes only hold slot indices. Each slot
//     remembers the leaves that reference it so that a removal clears every
//     reference at once.
//   - a leaf subdivides into 8 equal octants when it holds more than
//     maxObjectsPerNode objects and its level is below maxDepth. An object
//     straddling a split plane is referenced by every leaf it intersects.
//   - queries deduplicate by slot, an object is returned once whatever the
//     number of leaves referencing it.
//   - objects lying entirely outside the root bounds are tracked in the id map
//     but are never inserted in the tree, unless strict bounds are enabled in
//     which case they are rejected.

const (
	DefaultMaxObjectsPerNode = 8
	DefaultMaxDepth          = 6

	ErrTypeOutOfBounds     = "spatial-out-of-bounds"
	ErrTypeInvalidGeometry = "spatial-invalid-geometry"

	rootNode = 0
)

// Option configures an index.
type Option func(*Index)

// WithMaxObjectsPerNode sets the number of objects a leaf holds before
// subdividing.
func WithMaxObjectsPerNode(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.maxObjectsPerNode = n
		}
	}
}

// WithMaxDepth sets the deepest level a node can be created at.
func WithMaxDepth(d int) Option {
	return func(idx *Index) {
		if d >= 0 {
			idx.maxDepth = d
		}
	}
}

// WithStrictBounds makes the index reject objects that are not entirely
// inside its bounds.
func WithStrictBounds() Option {
	return func(idx *Index) {
		idx.strictBounds = true
	}
}

type node struct {
	bounds   AABB
	level    int
	leaf     bool
	children [8]int
	slots    []int
}

type slot struct {
	object Object
	live   bool

	// The leaves referencing the slot.
	nodes []int
}

// Index is an octree that stores axis-aligned bounding boxes. It is safe for
// concurrent use.
type Index struct {
	mutex             sync.RWMutex
	bounds            AABB
	maxObjectsPerNode int
	maxDepth          int
	strictBounds      bool

	nodes     []node
	slots     []slot
	freeSlots []int
	ids       map[string]int
}

// NewIndex creates an index covering the given world bounds.
func NewIndex(bounds AABB, opts ...Option) *Index {
	idx := &Index{
		bounds:            bounds,
		maxObjectsPerNode: DefaultMaxObjectsPerNode,
		maxDepth:          DefaultMaxDepth,
	}

	for _, opt := range opts {
		opt(idx)
	}

	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.nodes = []node{{bounds: idx.bounds, leaf: true}}
	idx.slots = nil
	idx.freeSlots = nil
	idx.ids = make(map[string]int)
}

func (idx *Index) Bounds() AABB {
	return idx.bounds
}

// Add inserts the given object. An object with the same id is replaced.
func (idx *Index) Add(obj Object) error {
	if obj.ID == "" {
		return errors.New("object id is empty").
			WithType(ErrTypeInvalidGeometry)
	}

	if !obj.BoundingBox.IsValid() || !obj.Position.IsFinite() {
		return errors.New("object has an invalid bounding box").
			WithType(ErrTypeInvalidGeometry).
			WithTag("id", obj.ID).
			WithTag("bounding_box", obj.BoundingBox)
	}

	if idx.strictBounds && !idx.bounds.ContainsAABB(obj.BoundingBox) {
		return errors.New("object is outside of the index bounds").
			WithType(ErrTypeOutOfBounds).
			WithTag("id", obj.ID).
			WithTag("bounding_box", obj.BoundingBox).
			WithTag("bounds", idx.bounds)
	}

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if si, ok := idx.ids[obj.ID]; ok {
		idx.removeSlot(si)
	}

	si := idx.newSlot(obj.Clone())
	idx.ids[obj.ID] = si

	if idx.bounds.Intersects(obj.BoundingBox) {
		idx.insert(rootNode, si)
	}
	return nil
}

// Remove removes the object with the given id from the id map and from every
// leaf referencing it. It returns false when no such object exists.
func (idx *Index) Remove(id string) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	si, ok := idx.ids[id]
	if !ok {
		return false
	}

	idx.removeSlot(si)
	return true
}

// Get returns a copy of the object with the given id.
func (idx *Index) Get(id string) (Object, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	si, ok := idx.ids[id]
	if !ok {
		return Object{}, false
	}
	return idx.slots[si].object.Clone(), true
}

// Objects returns all the tracked objects sorted by id, including the ones
// outside of the root bounds.
func (idx *Index) Objects() []Object {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	slots := make([]int, 0, len(idx.ids))
	for _, si := range idx.ids {
		slots = append(slots, si)
	}
	return idx.objectsFromSlots(slots)
}

func (idx *Index) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return len(idx.ids)
}

func (idx *Index) QueryBounds(box AABB) []Object {
	return idx.query(box.Intersects, box.Intersects)
}

func (idx *Index) QueryPoint(p Vector3) []Object {
	contains := func(b AABB) bool {
		return b.Contains(p)
	}
	return idx.query(contains, contains)
}

// QueryRadius returns the objects whose bounding box is at most radius away
// from center.
func (idx *Index) QueryRadius(center Vector3, radius float32) []Object {
	if radius < 0 {
		return nil
	}

	prefilter := NewAABBFromCenter(center, Vector3{radius * 2, radius * 2, radius * 2})
	return idx.query(prefilter.Intersects, func(b AABB) bool {
		return b.DistanceToPoint(center) <= radius
	})
}

// Raycast returns the objects hit by the ray within maxDistance, sorted by
// ascending distance.
func (idx *Index) Raycast(r Ray, maxDistance float32) []RayHit {
	if maxDistance < 0 || r.Direction.Length() == 0 {
		return nil
	}

	segment := idx.bounds
	if IsFinite(maxDistance) {
		segment = NewAABBFromPoints(r.Origin, r.At(maxDistance))
	}

	var hits []RayHit
	for _, obj := range idx.QueryBounds(segment) {
		hit, t := IntersectAABB(r, obj.BoundingBox)
		if !hit || t > maxDistance {
			continue
		}

		hits = append(hits, RayHit{
			Object:   obj,
			Distance: t,
			Point:    r.At(t),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits
}

// CheckCollisions returns the objects intersecting the given box, except the
// one with excludeID.
func (idx *Index) CheckCollisions(box AABB, excludeID string) []Object {
	objects := idx.QueryBounds(box)

	collisions := objects[:0]
	for _, obj := range objects {
		if obj.ID == excludeID && excludeID != "" {
			continue
		}
		collisions = append(collisions, obj)
	}
	return collisions
}

// Rebuild clears the tree and reinserts every tracked object. It compacts a
// tree degraded by many removals.
func (idx *Index) Rebuild() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	ids := make([]string, 0, len(idx.ids))
	for id := range idx.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	objects := make([]Object, len(ids))
	for i, id := range ids {
		objects[i] = idx.slots[idx.ids[id]].object
	}

	idx.reset()
	for _, obj := range objects {
		si := idx.newSlot(obj)
		idx.ids[obj.ID] = si

		if idx.bounds.Intersects(obj.BoundingBox) {
			idx.insert(rootNode, si)
		}
	}
}

// Clear removes all the objects.
func (idx *Index) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.reset()
}

func (idx *Index) Stats() Stats {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	stats := Stats{
		TotalNodes:          len(idx.nodes),
		TotalTrackedObjects: len(idx.ids),
	}

	for _, n := range idx.nodes {
		if n.level > stats.MaxDepth {
			stats.MaxDepth = n.level
		}
		if !n.leaf {
			continue
		}

		stats.LeafNodes++
		stats.LeafObjectRefs += len(n.slots)
		stats.ObjectsPerLeaf = append(stats.ObjectsPerLeaf, len(n.slots))
	}

	for _, si := range idx.ids {
		if len(idx.slots[si].nodes) == 0 {
			stats.UnindexedObjects++
		}
	}
	return stats
}

// References returns the number of leaves referencing the object with the
// given id.
func (idx *Index) References(id string) int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	si, ok := idx.ids[id]
	if !ok {
		return 0
	}
	return len(idx.slots[si].nodes)
}

func (idx *Index) query(visitNode func(AABB) bool, match func(AABB) bool) []Object {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	visited := make(map[int]struct{})
	var slots []int

	var visit func(ni int)
	visit = func(ni int) {
		n := &idx.nodes[ni]
		if !visitNode(n.bounds) {
			return
		}

		if !n.leaf {
			for _, ci := range n.children {
				visit(ci)
			}
			return
		}

		for _, si := range n.slots {
			if _, ok := visited[si]; ok {
				continue
			}
			visited[si] = struct{}{}

			if match(idx.slots[si].object.BoundingBox) {
				slots = append(slots, si)
			}
		}
	}
	visit(rootNode)

	return idx.objectsFromSlots(slots)
}

func (idx *Index) objectsFromSlots(slots []int) []Object {
	objects := make([]Object, len(slots))
	for i, si := range slots {
		objects[i] = idx.slots[si].object.Clone()
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].ID < objects[j].ID
	})
	return objects
}

func (idx *Index) newSlot(obj Object) int {
	s := slot{object: obj, live: true}

	if n := len(idx.freeSlots); n != 0 {
		si := idx.freeSlots[n-1]
		idx.freeSlots = idx.freeSlots[:n-1]
		idx.slots[si] = s
		return si
	}

	idx.slots = append(idx.slots, s)
	return len(idx.slots) - 1
}

func (idx *Index) removeSlot(si int) {
	for _, ni := range idx.slots[si].nodes {
		idx.nodes[ni].slots = removeInt(idx.nodes[ni].slots, si)
	}

	delete(idx.ids, idx.slots[si].object.ID)
	idx.slots[si] = slot{}
	idx.freeSlots = append(idx.freeSlots, si)
}

func (idx *Index) insert(ni int, si int) {
	box := idx.slots[si].object.BoundingBox
	if !idx.nodes[ni].bounds.Intersects(box) {
		return
	}

	if !idx.nodes[ni].leaf {
		children := idx.nodes[ni].children
		for _, ci := range children {
			idx.insert(ci, si)
		}
		return
	}

	idx.nodes[ni].slots = append(idx.nodes[ni].slots, si)
	idx.slots[si].nodes = append(idx.slots[si].nodes, ni)

	if len(idx.nodes[ni].slots) > idx.maxObjectsPerNode && idx.nodes[ni].level < idx.maxDepth {
		idx.subdivide(ni)
	}
}

// NOTE: subdivide appends to idx.nodes, node pointers must not be kept across
// the call.
func (idx *Index) subdivide(ni int) {
	bounds := idx.nodes[ni].bounds
	level := idx.nodes[ni].level

	var children [8]int
	for i := range children {
		children[i] = len(idx.nodes)
		idx.nodes = append(idx.nodes, node{
			bounds: bounds.Octant(i),
			level:  level + 1,
			leaf:   true,
		})
	}

	slots := idx.nodes[ni].slots
	idx.nodes[ni].slots = nil
	idx.nodes[ni].leaf = false
	idx.nodes[ni].children = children

	for _, si := range slots {
		idx.slots[si].nodes = removeInt(idx.slots[si].nodes, ni)
		for _, ci := range children {
			idx.insert(ci, si)
		}
	}
}

func removeInt(s []int, v int) []int {
	for i := range s {
		if s[i] == v {
			s[i] = s[len(s)-1]
			return s[:len(s)-1]
		}
	}
	return s
}

// Footprint returns the bounding box of a box of the given size centered on
// position and rotated by yaw radians around the Y axis.
func Footprint(position Vector3, size Vector3, yaw float32) AABB {
	cos := math32.Abs(math32.Cos(yaw))
	sin := math32.Abs(math32.Sin(yaw))

	rotated := Vector3{
		X: cos*size.X + sin*size.Z,
		Y: size.Y,
		Z: sin*size.X + cos*size.Z,
	}
	return NewAABBFromCenter(position, rotated)
}
