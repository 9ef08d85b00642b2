package spatial

// Stats describes the shape of an octree.
type Stats struct {
	TotalNodes int `json:"totalNodes"`
	LeafNodes  int `json:"leafNodes"`
	MaxDepth   int `json:"maxDepth"`

	// The number of object references held by leaves. Objects straddling a
	// split plane are counted once per leaf.
	LeafObjectRefs int   `json:"leafObjectRefs"`
	ObjectsPerLeaf []int `json:"objectsPerLeaf"`

	// The authoritative number of objects, read from the id map.
	TotalTrackedObjects int `json:"totalTrackedObjects"`

	// Objects tracked in the id map but lying outside the root bounds.
	UnindexedObjects int `json:"unindexedObjects"`
}

// Partition is the read side of a spatial index.
type Partition interface {
	Bounds() AABB
	Get(id string) (Object, bool)
	QueryBounds(box AABB) []Object
	QueryPoint(p Vector3) []Object
	QueryRadius(center Vector3, radius float32) []Object
	Raycast(r Ray, maxDistance float32) []RayHit
	CheckCollisions(box AABB, excludeID string) []Object

	// debug stuff:
	Stats() Stats
}
