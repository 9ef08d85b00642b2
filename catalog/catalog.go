package catalog

import (
	"sort"
	"sync"
)

// PlacementType describes where an object type can be placed.
type PlacementType string

const (
	PlacementFloor   PlacementType = "floor"
	PlacementWall    PlacementType = "wall"
	PlacementCeiling PlacementType = "ceiling"
	PlacementSurface PlacementType = "surface"
	PlacementAny     PlacementType = "any"
)

// IsValid reports whether p is one of the known placement types.
func (p PlacementType) IsValid() bool {
	switch p {
	case PlacementFloor, PlacementWall, PlacementCeiling, PlacementSurface, PlacementAny:
		return true
	default:
		return false
	}
}

// CompatibleWith reports whether an object with placement type p can be
// placed on the given surface. An empty surface or the any type are always
// compatible.
func (p PlacementType) CompatibleWith(surface PlacementType) bool {
	return p == PlacementAny || surface == "" || surface == PlacementAny || p == surface
}

// Dimensions are the width (x), height (y) and depth (z) of an object type, in
// meters.
type Dimensions struct {
	Width  float32 `json:"width"  yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
	Depth  float32 `json:"depth"  yaml:"depth"`
}

// Clearances are the minimum empty spaces required beyond each face of an
// object. Front is +Z, right is +X and top is +Y.
type Clearances struct {
	Front  float32 `json:"front,omitempty"  yaml:"front"`
	Back   float32 `json:"back,omitempty"   yaml:"back"`
	Left   float32 `json:"left,omitempty"   yaml:"left"`
	Right  float32 `json:"right,omitempty"  yaml:"right"`
	Top    float32 `json:"top,omitempty"    yaml:"top"`
	Bottom float32 `json:"bottom,omitempty" yaml:"bottom"`
}

// Definition is the metadata of an object type.
type Definition struct {
	Type          string        `json:"type"                  yaml:"type"`
	Dimensions    Dimensions    `json:"dimensions"            yaml:"dimensions"`
	PlacementType PlacementType `json:"placementType"         yaml:"placement_type"`
	Clearances    Clearances    `json:"clearances"            yaml:"clearances"`
	Description   string        `json:"description,omitempty" yaml:"description"`
}

// Library is the interface that wraps the object type lookup.
type Library interface {
	// Get returns the definition of the given object type.
	Get(objectType string) (Definition, bool)
}

// Catalog is a Library backed by a map. It is safe for concurrent use.
type Catalog struct {
	mutex       sync.RWMutex
	definitions map[string]Definition
}

// New creates a catalog with the given definitions.
func New(definitions ...Definition) *Catalog {
	c := &Catalog{
		definitions: make(map[string]Definition, len(definitions)),
	}

	for _, d := range definitions {
		c.definitions[d.Type] = d
	}
	return c
}

func (c *Catalog) Get(objectType string) (Definition, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	d, ok := c.definitions[objectType]
	return d, ok
}

// Set adds or replaces a definition.
func (c *Catalog) Set(d Definition) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.definitions[d.Type] = d
}

// Replace swaps every definition with the given ones.
func (c *Catalog) Replace(definitions []Definition) {
	defs := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		defs[d.Type] = d
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.definitions = defs
}

// Types returns the sorted list of the known object types.
func (c *Catalog) Types() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	types := make([]string, 0, len(c.definitions))
	for t := range c.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Definitions returns all the definitions sorted by type.
func (c *Catalog) Definitions() []Definition {
	types := c.Types()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	definitions := make([]Definition, 0, len(types))
	for _, t := range types {
		if d, ok := c.definitions[t]; ok {
			definitions = append(definitions, d)
		}
	}
	return definitions
}

// Default returns a catalog preloaded with common facility fixtures.
func Default() *Catalog {
	return New(DefaultDefinitions()...)
}

func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Type:          "server_rack",
			Dimensions:    Dimensions{Width: 0.6, Height: 2, Depth: 1.2},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 1.2, Back: 0.9},
			Description:   "42U server rack",
		},
		{
			Type:          "storage_rack",
			Dimensions:    Dimensions{Width: 2.4, Height: 2.5, Depth: 0.9},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 1.5},
			Description:   "Pallet storage rack",
		},
		{
			Type:          "workbench",
			Dimensions:    Dimensions{Width: 1.8, Height: 0.9, Depth: 0.75},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 0.9},
			Description:   "Workbench",
		},
		{
			Type:          "desk",
			Dimensions:    Dimensions{Width: 1.4, Height: 0.75, Depth: 0.7},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 0.8},
			Description:   "Office desk",
		},
		{
			Type:          "cabinet",
			Dimensions:    Dimensions{Width: 0.9, Height: 1.8, Depth: 0.45},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 0.6},
			Description:   "Storage cabinet",
		},
		{
			Type:          "light_fixture",
			Dimensions:    Dimensions{Width: 1.2, Height: 0.1, Depth: 0.3},
			PlacementType: PlacementCeiling,
			Description:   "Ceiling light fixture",
		},
		{
			Type:          "wall_panel",
			Dimensions:    Dimensions{Width: 1.2, Height: 2.4, Depth: 0.05},
			PlacementType: PlacementWall,
			Description:   "Wall panel",
		},
		{
			Type:          "sink",
			Dimensions:    Dimensions{Width: 0.6, Height: 0.9, Depth: 0.5},
			PlacementType: PlacementFloor,
			Clearances:    Clearances{Front: 0.75},
			Description:   "Utility sink",
		},
		{
			Type:          "electrical_panel",
			Dimensions:    Dimensions{Width: 0.5, Height: 0.8, Depth: 0.15},
			PlacementType: PlacementWall,
			Clearances:    Clearances{Front: 1, Left: 0.15, Right: 0.15},
			Description:   "Electrical distribution panel",
		},
	}
}
