package spatial

import "github.com/chewxy/math32"

// AABB is an axis-aligned bounding box, the primitive behind every spatial
// test.
type AABB struct {
	Min Vector3 `json:"min"`
	Max Vector3 `json:"max"`
}

// NewAABBFromCenter returns the box of the given size centered on center.
func NewAABBFromCenter(center Vector3, size Vector3) AABB {
	half := Mul(size, 0.5)
	return AABB{
		Min: Sub(center, half),
		Max: Add(center, half),
	}
}

// NewAABBFromPoints returns the smallest box containing all the given points.
func NewAABBFromPoints(points ...Vector3) AABB {
	if len(points) == 0 {
		return AABB{}
	}

	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min = Min(box.Min, p)
		box.Max = Max(box.Max, p)
	}
	return box
}

func (b AABB) Center() Vector3 {
	return Mul(Add(b.Min, b.Max), 0.5)
}

func (b AABB) Size() Vector3 {
	return Sub(b.Max, b.Min)
}

// IsValid reports whether the box has finite coordinates and min <= max on
// every axis.
func (b AABB) IsValid() bool {
	return b.Min.IsFinite() && b.Max.IsFinite() && b.Min.LesserOrEqualThan(b.Max)
}

// Contains reports whether p is inside the box, boundaries included.
func (b AABB) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsAABB reports whether other lies entirely inside b.
func (b AABB) ContainsAABB(other AABB) bool {
	return b.Contains(other.Min) && b.Contains(other.Max)
}

// Intersects reports whether the boxes share at least one point. Touching
// boxes intersect.
func (b AABB) Intersects(other AABB) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// Overlaps reports whether the boxes penetrate each other by more than
// epsilon on every axis.
func (b AABB) Overlaps(other AABB, epsilon float32) bool {
	return b.Min.X+epsilon < other.Max.X && b.Max.X-epsilon > other.Min.X &&
		b.Min.Y+epsilon < other.Max.Y && b.Max.Y-epsilon > other.Min.Y &&
		b.Min.Z+epsilon < other.Max.Z && b.Max.Z-epsilon > other.Min.Z
}

// Penetration returns how deep b and other overlap on each axis. Negative
// values mean the boxes are apart on that axis.
func (b AABB) Penetration(other AABB) Vector3 {
	return Vector3{
		math32.Min(b.Max.X, other.Max.X) - math32.Max(b.Min.X, other.Min.X),
		math32.Min(b.Max.Y, other.Max.Y) - math32.Max(b.Min.Y, other.Min.Y),
		math32.Min(b.Max.Z, other.Max.Z) - math32.Max(b.Min.Z, other.Min.Z),
	}
}

func (b AABB) Union(other AABB) AABB {
	return AABB{
		Min: Min(b.Min, other.Min),
		Max: Max(b.Max, other.Max),
	}
}

func (b AABB) Translate(offset Vector3) AABB {
	return AABB{
		Min: Add(b.Min, offset),
		Max: Add(b.Max, offset),
	}
}

// Expand grows the box by the given amount on every side.
func (b AABB) Expand(amount float32) AABB {
	delta := Vector3{amount, amount, amount}
	return AABB{
		Min: Sub(b.Min, delta),
		Max: Add(b.Max, delta),
	}
}

// ClosestPoint returns the point of the box closest to p.
func (b AABB) ClosestPoint(p Vector3) Vector3 {
	return Vector3{
		math32.Max(b.Min.X, math32.Min(p.X, b.Max.X)),
		math32.Max(b.Min.Y, math32.Min(p.Y, b.Max.Y)),
		math32.Max(b.Min.Z, math32.Min(p.Z, b.Max.Z)),
	}
}

// DistanceToPoint returns 0 when p is inside the box.
func (b AABB) DistanceToPoint(p Vector3) float32 {
	return Distance(b.ClosestPoint(p), p)
}

// Octant returns the i-th of the 8 equal sub boxes. Bit 0 selects the upper
// X half, bit 1 the upper Y half and bit 2 the upper Z half.
func (b AABB) Octant(i int) AABB {
	center := b.Center()
	octant := AABB{Min: b.Min, Max: center}

	if i&1 != 0 {
		octant.Min.X, octant.Max.X = center.X, b.Max.X
	}
	if i&2 != 0 {
		octant.Min.Y, octant.Max.Y = center.Y, b.Max.Y
	}
	if i&4 != 0 {
		octant.Min.Z, octant.Max.Z = center.Z, b.Max.Z
	}
	return octant
}

// Object is an entry of the spatial index.
type Object struct {
	ID          string         `json:"id"`
	BoundingBox AABB           `json:"boundingBox"`
	Position    Vector3        `json:"position"`
	UserData    map[string]any `json:"userData,omitempty"`
}

// Clone returns a copy of the object that does not share its user data.
func (o Object) Clone() Object {
	if o.UserData == nil {
		return o
	}

	userData := make(map[string]any, len(o.UserData))
	for k, v := range o.UserData {
		userData[k] = v
	}
	o.UserData = userData
	return o
}

// StringData returns the user data value for the given key when it holds a
// string.
func (o Object) StringData(key string) string {
	s, _ := o.UserData[key].(string)
	return s
}

// RayHit is an object hit by a ray cast.
type RayHit struct {
	Object   Object  `json:"object"`
	Distance float32 `json:"distance"`
	Point    Vector3 `json:"point"`
}
