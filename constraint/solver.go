package constraint

import (
	"fmt"
	"time"

	"github.com/aukilabs/laguz/spatial"
	"github.com/chewxy/math32"
)

// Solver scores placements and nudges them until they satisfy the overlap,
// clearance, surface and bounds rules.
type Solver struct {
	// The maximum number of nudges performed by Solve. Defaults to 10.
	MaxIterations int
}

// Validate scores the given transform. It never modifies the transform.
func (s *Solver) Validate(t Transform, ctx Context) Result {
	footprint := Footprint(t, ctx.Target.Dimensions)

	var issues []string
	var suggestions []string
	var penalties float32

	neighbors := neighborsOf(ctx)

	if !ctx.AllowOverlap {
		var overlapping bool
		for _, n := range neighbors {
			if !footprint.Overlaps(n.BoundingBox, spatial.Epsilon) {
				continue
			}

			issues = append(issues, fmt.Sprintf("Overlaps with %s", n.ID))
			penalties += overlapPenalty
			overlapping = true
		}

		if overlapping {
			suggestions = append(suggestions, "Move the object to a clear area")
		}

		for _, z := range clearanceZones(footprint, ctx.Target.Clearances) {
			for _, n := range neighbors {
				if !z.box.Overlaps(n.BoundingBox, spatial.Epsilon) {
					continue
				}

				issues = append(issues, fmt.Sprintf("Insufficient %s clearance (%.2fm required)", z.name, z.depth))
				suggestions = append(suggestions, fmt.Sprintf("Keep %.2fm free on the %s side", z.depth, z.name))
				penalties += clearancePenalty
				break
			}
		}
	}

	if !ctx.Target.PlacementType.CompatibleWith(ctx.PreferredSurface) {
		issues = append(issues, fmt.Sprintf(
			"Placement type %s is not compatible with %s surface",
			ctx.Target.PlacementType,
			ctx.PreferredSurface,
		))
		suggestions = append(suggestions, fmt.Sprintf("Place the object on a %s surface", ctx.Target.PlacementType))
		penalties += surfacePenalty
	}

	if ctx.Index != nil && !ctx.Index.Bounds().ContainsAABB(footprint) {
		issues = append(issues, "Outside of facility bounds")
		suggestions = append(suggestions, "Move the object inside the facility")
		penalties += boundsPenalty
	}

	if ctx.GridSize > 0 {
		snapped := spatial.Vector3{
			X: spatial.Snap(t.Position.X, ctx.GridSize),
			Y: t.Position.Y,
			Z: spatial.Snap(t.Position.Z, ctx.GridSize),
		}
		if !snapped.EqualWithEpsilon(t.Position, ctx.SnapTolerance) {
			suggestions = append(suggestions, "Snap to grid at "+formatVector(snapped))
		}
	}

	if p, ok := nearestSnapPoint(t.Position, ctx.SnapPoints); ok && spatial.Distance(p, t.Position) > ctx.SnapTolerance {
		suggestions = append(suggestions, "Nearest snap point at "+formatVector(p))
	}

	return Result{
		Valid:       len(issues) == 0,
		Issues:      issues,
		Suggestions: suggestions,
		Score:       clamp(100-penalties, 0, 100),
	}
}

// Solve validates the transform and nudges it away from its violating
// neighbors until it is valid or MaxIterations is reached. It returns the best
// scoring transform found, which may not be valid.
func (s *Solver) Solve(t Transform, ctx Context) Solution {
	start := time.Now()

	result := s.Validate(t, ctx)
	best := Solution{
		Transform: t,
		Result:    result,
	}

	current := t
	iterations := 0
	for iterations < s.maxIterations() && !result.Valid {
		next, ok := s.nudge(current, ctx)
		if !ok {
			break
		}

		iterations++
		current = next
		if ctx.Index != nil {
			ctx.Nearby = gather(current, ctx)
		}

		result = s.Validate(current, ctx)
		if result.Valid || result.Score > best.Result.Score {
			best.Transform = current
			best.Result = result
		}
	}

	best.Iterations = iterations
	instrumentSolve(iterations, best.Result.Valid, time.Since(start))
	return best
}

func (s *Solver) maxIterations() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return DefaultMaxIterations
}

// nudge pushes the transform, clearances included, out of the neighbor it
// penetrates the most. The push happens along the X or Z direction of least
// penetration. It returns false when the position can't be improved.
func (s *Solver) nudge(t Transform, ctx Context) (Transform, bool) {
	footprint := Footprint(t, ctx.Target.Dimensions)
	reserved := ClearanceBox(footprint, ctx.Target.Clearances)

	var worst *spatial.Object
	var worstVolume float32
	for _, n := range neighborsOf(ctx) {
		if ctx.AllowOverlap || !reserved.Overlaps(n.BoundingBox, spatial.Epsilon) {
			continue
		}

		p := reserved.Penetration(n.BoundingBox)
		if volume := p.X * p.Y * p.Z; worst == nil || volume > worstVolume {
			n := n
			worst = &n
			worstVolume = volume
		}
	}

	next := t
	if worst != nil {
		box := worst.BoundingBox

		pushes := []spatial.Vector3{
			{X: box.Max.X - reserved.Min.X},
			{X: box.Min.X - reserved.Max.X},
			{Z: box.Max.Z - reserved.Min.Z},
			{Z: box.Min.Z - reserved.Max.Z},
		}

		push := pushes[0]
		for _, p := range pushes[1:] {
			if p.Length() < push.Length() {
				push = p
			}
		}

		next.Position = spatial.Add(next.Position, roundUpToGrid(push, ctx.GridSize))
	}

	if ctx.Index != nil {
		next.Position = clampInside(next.Position, footprint.Size(), ctx.Index.Bounds())
	}

	if next.Position.EqualWithEpsilon(t.Position, spatial.Epsilon) {
		return t, false
	}
	return next, true
}

// neighborsOf returns the nearby objects that can obstruct the target. The
// excluded object and the surfaces are left out.
func neighborsOf(ctx Context) []spatial.Object {
	neighbors := make([]spatial.Object, 0, len(ctx.Nearby))
	for _, n := range ctx.Nearby {
		if n.ID == ctx.ExcludeID && ctx.ExcludeID != "" {
			continue
		}
		if IsSurface(n) {
			continue
		}
		neighbors = append(neighbors, n)
	}
	return neighbors
}

// IsSurface reports whether the object is a surface other objects stand on,
// like a floor.
func IsSurface(o spatial.Object) bool {
	surface, _ := o.UserData[SurfaceDataKey].(bool)
	return surface
}

// gather queries the objects that can interact with the given transform.
func gather(t Transform, ctx Context) []spatial.Object {
	return ctx.Index.QueryRadius(t.Position, SearchRadius(t, ctx))
}

// SearchRadius returns the radius around the transform position where
// neighbors can affect its validation.
func SearchRadius(t Transform, ctx Context) float32 {
	margin := ctx.SearchMargin
	if margin <= 0 {
		margin = defaultSearchMargin
	}

	footprint := Footprint(t, ctx.Target.Dimensions)
	c := ctx.Target.Clearances
	clearance := math32.Max(
		math32.Max(math32.Max(c.Front, c.Back), math32.Max(c.Left, c.Right)),
		math32.Max(c.Top, c.Bottom),
	)
	return footprint.Size().Length()/2 + clearance + margin
}

func roundUpToGrid(v spatial.Vector3, gridSize float32) spatial.Vector3 {
	if gridSize <= 0 {
		return v
	}

	round := func(f float32) float32 {
		if f == 0 {
			return 0
		}
		sign := float32(1)
		if f < 0 {
			sign = -1
		}
		return sign * math32.Ceil(math32.Abs(f)/gridSize-spatial.Epsilon) * gridSize
	}
	return spatial.Vector3{X: round(v.X), Y: round(v.Y), Z: round(v.Z)}
}

func clampInside(position spatial.Vector3, size spatial.Vector3, bounds spatial.AABB) spatial.Vector3 {
	half := spatial.Mul(size, 0.5)
	return spatial.Vector3{
		X: clamp(position.X, bounds.Min.X+half.X, bounds.Max.X-half.X),
		Y: clamp(position.Y, bounds.Min.Y+half.Y, bounds.Max.Y-half.Y),
		Z: clamp(position.Z, bounds.Min.Z+half.Z, bounds.Max.Z-half.Z),
	}
}

func nearestSnapPoint(p spatial.Vector3, points []spatial.Vector3) (spatial.Vector3, bool) {
	if len(points) == 0 {
		return spatial.Vector3{}, false
	}

	nearest := points[0]
	for _, sp := range points[1:] {
		if spatial.Distance(sp, p) < spatial.Distance(nearest, p) {
			nearest = sp
		}
	}
	return nearest, true
}
