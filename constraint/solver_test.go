package constraint

import (
	"fmt"
	"math"
	"testing"

	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/spatial"
	"github.com/stretchr/testify/require"
)

var (
	testBounds = spatial.AABB{
		Min: spatial.Vector3{X: -50, Y: -10, Z: -50},
		Max: spatial.Vector3{X: 50, Y: 50, Z: 50},
	}

	testCube = catalog.Definition{
		Type:          "cube",
		Dimensions:    catalog.Dimensions{Width: 2, Height: 2, Depth: 2},
		PlacementType: catalog.PlacementFloor,
	}
)

func newObject(id string, center spatial.Vector3, size spatial.Vector3) spatial.Object {
	return spatial.Object{
		ID:          id,
		BoundingBox: spatial.NewAABBFromCenter(center, size),
		Position:    center,
	}
}

func TestFootprint(t *testing.T) {
	dims := catalog.Dimensions{Width: 4, Height: 2, Depth: 1}

	t.Run("unrotated", func(t *testing.T) {
		box := Footprint(Transform{}, dims)
		require.True(t, box.Size().EqualWithEpsilon(spatial.Vector3{X: 4, Y: 2, Z: 1}, spatial.Epsilon))
		require.True(t, box.Center().EqualWithEpsilon(spatial.Vector3{}, spatial.Epsilon))
	})

	t.Run("quarter turn swaps width and depth", func(t *testing.T) {
		box := Footprint(Transform{
			Rotation: spatial.Vector3{Y: math.Pi / 2},
		}, dims)
		require.True(t, box.Size().EqualWithEpsilon(spatial.Vector3{X: 1, Y: 2, Z: 4}, 0.001))
	})

	t.Run("scaled", func(t *testing.T) {
		box := Footprint(Transform{
			Position: spatial.Vector3{X: 10},
			Scale:    spatial.Vector3{X: 2, Y: 1},
		}, dims)
		require.True(t, box.Size().EqualWithEpsilon(spatial.Vector3{X: 8, Y: 2, Z: 1}, spatial.Epsilon))
		require.True(t, box.Center().EqualWithEpsilon(spatial.Vector3{X: 10}, spatial.Epsilon))
	})
}

func TestValidate(t *testing.T) {
	var solver Solver

	t.Run("free space is valid", func(t *testing.T) {
		res := solver.Validate(Transform{}, Context{Target: testCube})
		require.True(t, res.Valid)
		require.Empty(t, res.Issues)
		require.Equal(t, float32(100), res.Score)
	})

	t.Run("overlap", func(t *testing.T) {
		ctx := Context{
			Target: testCube,
			Nearby: []spatial.Object{
				newObject("other", spatial.Vector3{X: 1}, spatial.Vector3{X: 2, Y: 2, Z: 2}),
			},
		}

		res := solver.Validate(Transform{}, ctx)
		require.False(t, res.Valid)
		require.Equal(t, []string{"Overlaps with other"}, res.Issues)
		require.Equal(t, float32(60), res.Score)
		require.NotEmpty(t, res.Suggestions)
	})

	t.Run("touching is not an overlap", func(t *testing.T) {
		ctx := Context{
			Target: testCube,
			Nearby: []spatial.Object{
				newObject("other", spatial.Vector3{X: 2}, spatial.Vector3{X: 2, Y: 2, Z: 2}),
			},
		}

		res := solver.Validate(Transform{}, ctx)
		require.True(t, res.Valid)
	})

	t.Run("excluded and allowed overlaps", func(t *testing.T) {
		ctx := Context{
			Target: testCube,
			Nearby: []spatial.Object{
				newObject("self", spatial.Vector3{}, spatial.Vector3{X: 2, Y: 2, Z: 2}),
			},
			ExcludeID: "self",
		}
		require.True(t, solver.Validate(Transform{}, ctx).Valid)

		ctx.ExcludeID = ""
		ctx.AllowOverlap = true
		require.True(t, solver.Validate(Transform{}, ctx).Valid)
	})

	t.Run("surfaces do not obstruct", func(t *testing.T) {
		floor := newObject("floor", spatial.Vector3{}, spatial.Vector3{X: 20, Y: 0.1, Z: 20})
		floor.UserData = map[string]any{SurfaceDataKey: true}

		res := solver.Validate(Transform{}, Context{
			Target: testCube,
			Nearby: []spatial.Object{floor},
		})
		require.True(t, res.Valid)
	})

	t.Run("clearance", func(t *testing.T) {
		target := testCube
		target.Clearances = catalog.Clearances{Front: 1, Left: 1}

		ctx := Context{
			Target: target,
			Nearby: []spatial.Object{
				newObject("front", spatial.Vector3{Z: 2.2}, spatial.Vector3{X: 1, Y: 1, Z: 1}),
			},
		}

		res := solver.Validate(Transform{}, ctx)
		require.False(t, res.Valid)
		require.Len(t, res.Issues, 1)
		require.Contains(t, res.Issues[0], "front")
		require.Equal(t, float32(90), res.Score)
	})

	t.Run("surface compatibility", func(t *testing.T) {
		res := solver.Validate(Transform{}, Context{
			Target:           testCube,
			PreferredSurface: catalog.PlacementWall,
		})
		require.False(t, res.Valid)
		require.Equal(t, float32(75), res.Score)

		res = solver.Validate(Transform{}, Context{
			Target:           testCube,
			PreferredSurface: catalog.PlacementAny,
		})
		require.True(t, res.Valid)
	})

	t.Run("bounds", func(t *testing.T) {
		res := solver.Validate(Transform{
			Position: spatial.Vector3{X: 49.5},
		}, Context{
			Target: testCube,
			Index:  spatial.NewIndex(testBounds),
		})
		require.False(t, res.Valid)
		require.Equal(t, []string{"Outside of facility bounds"}, res.Issues)
		require.Equal(t, float32(50), res.Score)
	})

	t.Run("grid and snap points only suggest", func(t *testing.T) {
		res := solver.Validate(Transform{
			Position: spatial.Vector3{X: 0.3},
		}, Context{
			Target:        testCube,
			GridSize:      0.5,
			SnapTolerance: 0.1,
			SnapPoints:    []spatial.Vector3{{X: 5}, {X: 1}},
		})
		require.True(t, res.Valid)
		require.Len(t, res.Suggestions, 2)
		require.Contains(t, res.Suggestions[0], "grid")
		require.Contains(t, res.Suggestions[1], "(1.00, 0.00, 0.00)")
	})

	t.Run("score never negative", func(t *testing.T) {
		var nearby []spatial.Object
		for _, id := range []string{"a", "b", "c"} {
			nearby = append(nearby, newObject(id, spatial.Vector3{}, spatial.Vector3{X: 2, Y: 2, Z: 2}))
		}

		res := solver.Validate(Transform{}, Context{Target: testCube, Nearby: nearby})
		require.Zero(t, res.Score)
	})
}

func TestSolve(t *testing.T) {
	t.Run("valid transform is untouched", func(t *testing.T) {
		var solver Solver
		sol := solver.Solve(Transform{Position: spatial.Vector3{X: 3}}, Context{Target: testCube})

		require.True(t, sol.Result.Valid)
		require.Zero(t, sol.Iterations)
		require.Equal(t, spatial.Vector3{X: 3}, sol.Transform.Position)
	})

	t.Run("pushed out of a neighbor", func(t *testing.T) {
		idx := spatial.NewIndex(testBounds)
		err := idx.Add(newObject("blocker", spatial.Vector3{}, spatial.Vector3{X: 2, Y: 2, Z: 2}))
		require.NoError(t, err)

		ctx := Context{
			Index:    idx,
			Target:   testCube,
			GridSize: 0.5,
		}
		ctx.Nearby = idx.QueryRadius(spatial.Vector3{X: 0.5}, SearchRadius(Transform{}, ctx))

		var solver Solver
		sol := solver.Solve(Transform{Position: spatial.Vector3{X: 0.5}}, ctx)

		require.True(t, sol.Result.Valid)
		require.Equal(t, 1, sol.Iterations)
		require.True(t, sol.Transform.Position.EqualWithEpsilon(spatial.Vector3{X: 2}, spatial.Epsilon))
	})

	t.Run("pushed inside bounds", func(t *testing.T) {
		ctx := Context{
			Index:  spatial.NewIndex(testBounds),
			Target: testCube,
		}

		var solver Solver
		sol := solver.Solve(Transform{Position: spatial.Vector3{X: 60}}, ctx)

		require.True(t, sol.Result.Valid)
		require.Equal(t, 1, sol.Iterations)
		require.True(t, sol.Transform.Position.EqualWithEpsilon(spatial.Vector3{X: 49}, spatial.Epsilon))
	})

	t.Run("unsolvable returns the best effort", func(t *testing.T) {
		ctx := Context{
			Target:           testCube,
			PreferredSurface: catalog.PlacementCeiling,
		}

		solver := Solver{MaxIterations: 3}
		sol := solver.Solve(Transform{}, ctx)

		require.False(t, sol.Result.Valid)
		require.LessOrEqual(t, sol.Iterations, 3)
		require.NotEmpty(t, sol.Result.Issues)
	})

	t.Run("iterations are bounded", func(t *testing.T) {
		idx := spatial.NewIndex(testBounds)

		// A row of blockers pushing the target back and forth.
		for i := -20; i <= 20; i++ {
			err := idx.Add(newObject(
				fmt.Sprintf("blocker-%d", i),
				spatial.Vector3{X: float32(i) * 2},
				spatial.Vector3{X: 1.9, Y: 2, Z: 40},
			))
			require.NoError(t, err)
		}

		ctx := Context{Index: idx, Target: testCube}
		ctx.Nearby = idx.QueryRadius(spatial.Vector3{}, SearchRadius(Transform{}, ctx))

		solver := Solver{MaxIterations: 4}
		sol := solver.Solve(Transform{}, ctx)

		require.False(t, sol.Result.Valid)
		require.LessOrEqual(t, sol.Iterations, 4)
	})
}
