package constraint

import (
	"fmt"

	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/spatial"
	"github.com/chewxy/math32"
)

const (
	DefaultMaxIterations = 10

	overlapPenalty   = 40
	clearancePenalty = 10
	surfacePenalty   = 25
	boundsPenalty    = 50

	defaultSearchMargin = 2

	// SurfaceDataKey is the user data key flagging objects that never obstruct
	// a placement.
	SurfaceDataKey = "surface"
)

// Transform is the candidate placement of an object. Rotation holds Euler
// angles in radians, only the yaw (Rotation.Y) affects the footprint.
type Transform struct {
	Position spatial.Vector3 `json:"position"`
	Rotation spatial.Vector3 `json:"rotation"`
	Scale    spatial.Vector3 `json:"scale"`
}

// EffectiveScale returns the scale with zero components replaced by 1.
func (t Transform) EffectiveScale() spatial.Vector3 {
	s := t.Scale
	if s.X == 0 {
		s.X = 1
	}
	if s.Y == 0 {
		s.Y = 1
	}
	if s.Z == 0 {
		s.Z = 1
	}
	return s
}

// Context gathers what the solver needs to score a transform.
type Context struct {
	// The index used to check the facility bounds and to gather the
	// neighbors after each nudge. Optional.
	Index spatial.Partition

	// The definition of the object being placed.
	Target catalog.Definition

	// The objects around the candidate position.
	Nearby []spatial.Object

	SnapPoints       []spatial.Vector3
	GridSize         float32
	SnapTolerance    float32
	PreferredSurface catalog.PlacementType

	// The id of the object being moved, ignored by the overlap and
	// clearance checks.
	ExcludeID string

	// Skips the overlap and clearance checks.
	AllowOverlap bool

	// The distance added to the footprint and the clearances when gathering
	// the neighbors. Defaults to 2.
	SearchMargin float32
}

// Result is the outcome of a validation.
type Result struct {
	Valid       bool     `json:"isValid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Score       float32  `json:"score"`
}

// Solution is the outcome of solving a transform.
type Solution struct {
	Transform  Transform `json:"transform"`
	Result     Result    `json:"result"`
	Iterations int       `json:"iterations"`
}

// Footprint returns the bounding box of an object with the given dimensions
// placed with the given transform.
func Footprint(t Transform, dims catalog.Dimensions) spatial.AABB {
	size := spatial.MulComponents(
		spatial.Vector3{X: dims.Width, Y: dims.Height, Z: dims.Depth},
		t.EffectiveScale(),
	)
	return spatial.Footprint(t.Position, size, t.Rotation.Y)
}

// ClearanceBox returns the footprint grown by the given clearances.
func ClearanceBox(footprint spatial.AABB, c catalog.Clearances) spatial.AABB {
	return spatial.AABB{
		Min: spatial.Sub(footprint.Min, spatial.Vector3{X: c.Left, Y: c.Bottom, Z: c.Back}),
		Max: spatial.Add(footprint.Max, spatial.Vector3{X: c.Right, Y: c.Top, Z: c.Front}),
	}
}

type clearanceZone struct {
	name  string
	depth float32
	box   spatial.AABB
}

func clearanceZones(footprint spatial.AABB, c catalog.Clearances) []clearanceZone {
	zone := func(axis spatial.Axis, upper bool, depth float32) spatial.AABB {
		box := footprint
		if upper {
			face := footprint.Max.Axis(axis)
			box.Min = box.Min.WithAxis(axis, face)
			box.Max = box.Max.WithAxis(axis, face+depth)
		} else {
			face := footprint.Min.Axis(axis)
			box.Min = box.Min.WithAxis(axis, face-depth)
			box.Max = box.Max.WithAxis(axis, face)
		}
		return box
	}

	candidates := []clearanceZone{
		{name: "front", depth: c.Front, box: zone(spatial.AxisZ, true, c.Front)},
		{name: "back", depth: c.Back, box: zone(spatial.AxisZ, false, c.Back)},
		{name: "right", depth: c.Right, box: zone(spatial.AxisX, true, c.Right)},
		{name: "left", depth: c.Left, box: zone(spatial.AxisX, false, c.Left)},
		{name: "top", depth: c.Top, box: zone(spatial.AxisY, true, c.Top)},
		{name: "bottom", depth: c.Bottom, box: zone(spatial.AxisY, false, c.Bottom)},
	}

	zones := candidates[:0]
	for _, z := range candidates {
		if z.depth > 0 {
			zones = append(zones, z)
		}
	}
	return zones
}

func formatVector(v spatial.Vector3) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

func clamp(v, min, max float32) float32 {
	if min > max {
		return (min + max) / 2
	}
	return math32.Max(min, math32.Min(v, max))
}
