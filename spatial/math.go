package spatial

import (
	"github.com/chewxy/math32"
)

// Epsilon is the tolerance used when comparing coordinates.
const Epsilon = (float32)(0.0001)

func Swap(a *float32, b *float32) {
	*a, *b = *b, *a
}

func EqualWithEpsilon(a float32, b float32, epsilon float32) bool {
	return math32.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float32, min float32, max float32, epsilon float32) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func IsFinite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Vector3 is a point or a direction in facility space. Y is up.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func NewVector3(x, y, z float32) Vector3 {
	return Vector3{x, y, z}
}

func (v1 Vector3) EqualWithEpsilon(v2 Vector3, epsilon float32) bool {
	return math32.Abs(v1.X-v2.X) <= epsilon &&
		math32.Abs(v1.Y-v2.Y) <= epsilon &&
		math32.Abs(v1.Z-v2.Z) <= epsilon
}

func (v1 Vector3) Equal(v2 Vector3) bool {
	return v1.X == v2.X && v1.Y == v2.Y && v1.Z == v2.Z
}

func (v1 Vector3) GreaterOrEqualThan(v2 Vector3) bool {
	return v1.X >= v2.X && v1.Y >= v2.Y && v1.Z >= v2.Z
}

func (v1 Vector3) LesserOrEqualThan(v2 Vector3) bool {
	return v1.X <= v2.X && v1.Y <= v2.Y && v1.Z <= v2.Z
}

func (v Vector3) IsFinite() bool {
	return IsFinite(v.X) && IsFinite(v.Y) && IsFinite(v.Z)
}

// Axis returns the coordinate on the given axis.
func (v Vector3) Axis(a Axis) float32 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// WithAxis returns a copy of v with the coordinate on the given axis
// replaced.
func (v Vector3) WithAxis(a Axis, value float32) Vector3 {
	switch a {
	case AxisX:
		v.X = value
	case AxisY:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

func Add(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func Sub(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func Mul(a Vector3, s float32) Vector3 {
	return Vector3{a.X * s, a.Y * s, a.Z * s}
}

// MulComponents multiplies a and b component by component.
func MulComponents(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X * b.X, a.Y * b.Y, a.Z * b.Z}
}

func Min(a Vector3, b Vector3) Vector3 {
	return Vector3{math32.Min(a.X, b.X), math32.Min(a.Y, b.Y), math32.Min(a.Z, b.Z)}
}

func Max(a Vector3, b Vector3) Vector3 {
	return Vector3{math32.Max(a.X, b.X), math32.Max(a.Y, b.Y), math32.Max(a.Z, b.Z)}
}

func (a Vector3) Length() float32 {
	return math32.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
}

func Distance(a Vector3, b Vector3) float32 {
	return Sub(a, b).Length()
}

func Normalized(a Vector3) Vector3 {
	length := a.Length()
	result := a
	if length != 0 {
		result.X /= length
		result.Y /= length
		result.Z /= length
	}
	return result
}

func (a Vector3) Dot(b Vector3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func Cross(a Vector3, b Vector3) Vector3 {
	return Vector3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

// Snap rounds v to the nearest multiple of step. A step <= 0 returns v.
func Snap(v float32, step float32) float32 {
	if step <= 0 {
		return v
	}
	return math32.Round(v/step) * step
}

// Axis identifies one of the three world axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// Ray is a half-line starting at Origin.
type Ray struct {
	Origin    Vector3 `json:"origin"`
	Direction Vector3 `json:"direction"`
}

// At returns the point at distance t along the normalized ray direction.
func (r Ray) At(t float32) Vector3 {
	return Add(r.Origin, Mul(Normalized(r.Direction), t))
}

// IntersectAABB returns whether r hits the box and the distance along the
// normalized direction to the entry point. A ray starting inside the box hits
// at distance 0.
func IntersectAABB(r Ray, box AABB) (bool, float32) {
	dir := Normalized(r.Direction)
	if dir.Length() == 0 {
		if box.Contains(r.Origin) {
			return true, 0
		}
		return false, -1
	}

	tNear := math32.Inf(-1)
	tFar := math32.Inf(1)

	origin := [3]float32{r.Origin.X, r.Origin.Y, r.Origin.Z}
	d := [3]float32{dir.X, dir.Y, dir.Z}
	min := [3]float32{box.Min.X, box.Min.Y, box.Min.Z}
	max := [3]float32{box.Max.X, box.Max.Y, box.Max.Z}

	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			// parallel to the slab:
			if origin[i] < min[i] || origin[i] > max[i] {
				return false, -1
			}
			continue
		}

		t1 := (min[i] - origin[i]) / d[i]
		t2 := (max[i] - origin[i]) / d[i]
		if t1 > t2 {
			Swap(&t1, &t2)
		}

		tNear = math32.Max(tNear, t1)
		tFar = math32.Min(tFar, t2)
		if tNear > tFar || tFar < 0 {
			return false, -1
		}
	}

	return true, math32.Max(tNear, 0)
}
