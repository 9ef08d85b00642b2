package autoplace

import (
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/spatial"
	"github.com/chewxy/math32"
)

const (
	DefaultMaxAttempts = 100

	goldenAngle = 0.618 * 2 * math.Pi
)

// Validator is the interface that wraps the dry run of a placement.
type Validator interface {
	ValidatePlacement(objectType string, position spatial.Vector3, opts command.PlaceOptions) command.Result
}

// Placer is the interface that wraps the validation and the commit of a
// placement.
type Placer interface {
	Validator

	PlaceObject(objectType string, position spatial.Vector3, opts command.PlaceOptions) command.Result
}

// Searcher looks for a valid position around a preferred one, following a
// golden angle spiral.
type Searcher struct {
	Validator Validator

	// The grid the candidates are snapped to. Defaults to
	// command.DefaultGridSize.
	GridSize float32

	// The maximum number of spiral steps. Defaults to 100.
	MaxAttempts int
}

// FindOptimalPosition returns the first valid position of the spiral around
// preferred, or nil when none is found. It also returns the number of
// validations performed. Candidates snapping to an already visited grid cell
// are skipped.
func (s Searcher) FindOptimalPosition(objectType string, preferred spatial.Vector3, opts command.PlaceOptions) (*spatial.Vector3, int) {
	return s.search(objectType, preferred, opts, 0)
}

// search walks the spiral from the given attempt.
func (s Searcher) search(objectType string, preferred spatial.Vector3, opts command.PlaceOptions, from int) (*spatial.Vector3, int) {
	gridSize := s.gridSize()
	visited := make(map[[2]float32]struct{})
	validations := 0

	for attempt := from; attempt < s.maxAttempts(); attempt++ {
		theta := float32(attempt) * goldenAngle
		radius := math32.Sqrt(float32(attempt)) * gridSize

		candidate := spatial.Vector3{
			X: spatial.Snap(preferred.X+radius*math32.Cos(theta), gridSize),
			Y: preferred.Y,
			Z: spatial.Snap(preferred.Z+radius*math32.Sin(theta), gridSize),
		}

		cell := [2]float32{candidate.X, candidate.Z}
		if _, ok := visited[cell]; ok {
			continue
		}
		visited[cell] = struct{}{}

		validations++
		if res := s.Validator.ValidatePlacement(objectType, candidate, opts); res.Success {
			return &candidate, validations
		}
	}

	logs.WithTag("type", objectType).
		WithTag("preferred", preferred).
		WithTag("validations", validations).
		Debug("no valid position found")
	return nil, validations
}

// Place places the object at the preferred position when it is valid, or at
// the first valid position found around it. The validation of the preferred
// position stands for the first spiral step. The validation failure of the
// preferred position is returned when no position is found.
func (s Searcher) Place(p Placer, objectType string, preferred spatial.Vector3, opts command.PlaceOptions) command.Result {
	validation := p.ValidatePlacement(objectType, preferred, opts)
	if validation.Success {
		return p.PlaceObject(objectType, preferred, opts)
	}

	s.Validator = p
	position, validations := s.search(objectType, preferred, opts, 1)
	validations++
	if position == nil {
		validation.Metadata = withMetadata(validation.Metadata, "attempts", validations)
		return validation
	}

	res := p.PlaceObject(objectType, *position, opts)
	if res.Success {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Moved to (%.2f, %.2f) to find a valid position", position.X, position.Z))
		res.Metadata = withMetadata(res.Metadata, "attempts", validations)
	}
	return res
}

func (s Searcher) gridSize() float32 {
	if s.GridSize > 0 {
		return s.GridSize
	}
	return command.DefaultGridSize
}

func (s Searcher) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func withMetadata(metadata map[string]any, key string, value any) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata[key] = value
	return metadata
}
