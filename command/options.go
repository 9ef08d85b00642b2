package command

import (
	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/spatial"
)

const (
	DefaultGridSize            = 0.5
	DefaultSnapTolerance       = 0.1
	DefaultMaxSolverIterations = 10
	DefaultNearbyMargin        = 2

	DefaultWallHeight     = 3
	DefaultWallThickness  = 0.2
	DefaultWallMaterial   = "drywall"
	DefaultFloorThickness = 0.1

	MinWallLength = 0.1
)

// Config configures an API.
type Config struct {
	// The grid used to snap positions and round the solver pushes.
	GridSize float32 `json:"gridSize"`

	// The distance under which a position is considered snapped.
	SnapTolerance float32 `json:"snapTolerance"`

	MaxSolverIterations int `json:"maxSolverIterations"`

	// The distance added around a footprint when gathering its neighbors.
	NearbyMargin float32 `json:"nearbyMargin"`
}

func DefaultConfig() Config {
	return Config{
		GridSize:            DefaultGridSize,
		SnapTolerance:       DefaultSnapTolerance,
		MaxSolverIterations: DefaultMaxSolverIterations,
		NearbyMargin:        DefaultNearbyMargin,
	}
}

func (c Config) withDefaults() Config {
	if c.GridSize <= 0 {
		c.GridSize = DefaultGridSize
	}
	if c.SnapTolerance < 0 {
		c.SnapTolerance = DefaultSnapTolerance
	}
	if c.MaxSolverIterations <= 0 {
		c.MaxSolverIterations = DefaultMaxSolverIterations
	}
	if c.NearbyMargin <= 0 {
		c.NearbyMargin = DefaultNearbyMargin
	}
	return c
}

// PlaceOptions are the options of PlaceObject, ValidatePlacement and
// MoveObject. The zero value enforces constraints.
type PlaceOptions struct {
	// Constraints are enforced when nil.
	EnforceConstraints *bool                 `json:"enforceConstraints,omitempty"`
	SnapToGrid         bool                  `json:"snapToGrid"`
	AllowOverlap       bool                  `json:"allowOverlap"`
	PreferredSurface   catalog.PlacementType `json:"preferredSurface,omitempty"`

	// Overrides the clearances of the catalog definition.
	Clearances *catalog.Clearances `json:"clearances,omitempty"`

	// Euler angles in radians. When nil, new objects are not rotated and
	// moved objects keep their rotation.
	Rotation *spatial.Vector3 `json:"rotation,omitempty"`

	// When nil, new objects have a unit scale and moved objects keep their
	// scale.
	Scale *spatial.Vector3 `json:"scale,omitempty"`

	// The id of the created object. Generated when empty.
	ID string `json:"id,omitempty"`

	UserData map[string]any `json:"userData,omitempty"`
}

func DefaultPlaceOptions() PlaceOptions {
	return PlaceOptions{}
}

// ConstraintsEnforced reports whether the placement goes through the
// constraint solver.
func (o PlaceOptions) ConstraintsEnforced() bool {
	return o.EnforceConstraints == nil || *o.EnforceConstraints
}

// WithoutConstraints returns a copy of the options that skips the
// constraint solver.
func (o PlaceOptions) WithoutConstraints() PlaceOptions {
	enforce := false
	o.EnforceConstraints = &enforce
	return o
}

func (o PlaceOptions) rotation() spatial.Vector3 {
	if o.Rotation == nil {
		return spatial.Vector3{}
	}
	return *o.Rotation
}

func (o PlaceOptions) scale() spatial.Vector3 {
	if o.Scale == nil {
		return spatial.Vector3{}
	}
	return *o.Scale
}

// WallOptions are the options of PlaceWall. Zero values are replaced by the
// defaults.
type WallOptions struct {
	Height       float32 `json:"height"`
	Thickness    float32 `json:"thickness"`
	Material     string  `json:"material"`
	AllowOverlap bool    `json:"allowOverlap"`
	ID           string  `json:"id,omitempty"`
}

func DefaultWallOptions() WallOptions {
	return WallOptions{
		Height:    DefaultWallHeight,
		Thickness: DefaultWallThickness,
		Material:  DefaultWallMaterial,
	}
}

func (o WallOptions) withDefaults() WallOptions {
	if o.Height <= 0 {
		o.Height = DefaultWallHeight
	}
	if o.Thickness <= 0 {
		o.Thickness = DefaultWallThickness
	}
	if o.Material == "" {
		o.Material = DefaultWallMaterial
	}
	return o
}

// RoomOptions are the options of CreateRoom. Use DefaultRoomOptions to get a
// floor created.
type RoomOptions struct {
	WallHeight     float32 `json:"wallHeight"`
	WallThickness  float32 `json:"wallThickness"`
	Material       string  `json:"material"`
	CreateFloor    bool    `json:"createFloor"`
	FloorThickness float32 `json:"floorThickness"`
	AllowOverlap   bool    `json:"allowOverlap"`
}

func DefaultRoomOptions() RoomOptions {
	return RoomOptions{
		WallHeight:     DefaultWallHeight,
		WallThickness:  DefaultWallThickness,
		Material:       DefaultWallMaterial,
		CreateFloor:    true,
		FloorThickness: DefaultFloorThickness,
	}
}

func (o RoomOptions) withDefaults() RoomOptions {
	if o.FloorThickness <= 0 {
		o.FloorThickness = DefaultFloorThickness
	}
	return o
}

func (o RoomOptions) wallOptions() WallOptions {
	return WallOptions{
		Height:       o.WallHeight,
		Thickness:    o.WallThickness,
		Material:     o.Material,
		AllowOverlap: o.AllowOverlap,
	}.withDefaults()
}

// Alignment is the way AlignObjects lines objects up.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignRight  Alignment = "right"
	AlignCenter Alignment = "center"
	AlignFront  Alignment = "front"
	AlignBack   Alignment = "back"
	AlignMiddle Alignment = "middle"
	AlignTop    Alignment = "top"
	AlignBottom Alignment = "bottom"
)

// reference returns the axis and the coordinate the given alignment lines the
// objects up to within bounds. Edge is -1 when the min edges touch the
// reference, 1 for the max edges and 0 for the centers.
func (a Alignment) reference(bounds spatial.AABB) (axis spatial.Axis, ref float32, edge int, ok bool) {
	center := bounds.Center()

	switch a {
	case AlignLeft:
		return spatial.AxisX, bounds.Min.X, -1, true
	case AlignRight:
		return spatial.AxisX, bounds.Max.X, 1, true
	case AlignCenter:
		return spatial.AxisX, center.X, 0, true
	case AlignBack:
		return spatial.AxisZ, bounds.Min.Z, -1, true
	case AlignFront:
		return spatial.AxisZ, bounds.Max.Z, 1, true
	case AlignMiddle:
		return spatial.AxisZ, center.Z, 0, true
	case AlignBottom:
		return spatial.AxisY, bounds.Min.Y, -1, true
	case AlignTop:
		return spatial.AxisY, bounds.Max.Y, 1, true
	default:
		return spatial.AxisX, 0, 0, false
	}
}
