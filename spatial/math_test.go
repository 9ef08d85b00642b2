package spatial

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

func TestEqualWithEpsilon(t *testing.T) {
	require.True(t, EqualWithEpsilon(0.1, 0.2, 0.11))
	require.False(t, EqualWithEpsilon(0.1, 0.2, 0.01))
}

func TestDot(t *testing.T) {
	xAxis := Vector3{1, 0, 0}
	yAxis := Vector3{0, 1, 0}

	require.Equal(t, (float32)(0), xAxis.Dot(yAxis))
}

func TestCross(t *testing.T) {
	xAxis := Vector3{1, 0, 0}
	yAxis := Vector3{0, 1, 0}
	zAxis := Vector3{0, 0, 1}

	require.True(t, zAxis.Equal(Cross(xAxis, yAxis)))
}

func TestSnap(t *testing.T) {
	require.Equal(t, float32(1.5), Snap(1.4, 0.5))
	require.Equal(t, float32(-1), Snap(-1.1, 0.5))
	require.Equal(t, float32(1.4), Snap(1.4, 0))
}

func TestIsFinite(t *testing.T) {
	require.True(t, Vector3{1, 2, 3}.IsFinite())
	require.False(t, Vector3{math32.Inf(1), 2, 3}.IsFinite())
}

func TestIntersectAABB(t *testing.T) {
	box := NewAABBFromCenter(Vector3{}, Vector3{2, 2, 2})

	t.Run("hit from outside", func(t *testing.T) {
		hit, distance := IntersectAABB(Ray{
			Origin:    Vector3{-10, 0, 0},
			Direction: Vector3{2, 0, 0},
		}, box)

		require.True(t, hit)
		require.True(t, EqualWithEpsilon(9, distance, Epsilon))
	})

	t.Run("origin inside", func(t *testing.T) {
		hit, distance := IntersectAABB(Ray{
			Origin:    Vector3{0, 0, 0},
			Direction: Vector3{0, 1, 0},
		}, box)

		require.True(t, hit)
		require.Zero(t, distance)
	})

	t.Run("pointing away", func(t *testing.T) {
		hit, _ := IntersectAABB(Ray{
			Origin:    Vector3{-10, 0, 0},
			Direction: Vector3{-1, 0, 0},
		}, box)

		require.False(t, hit)
	})

	t.Run("parallel miss", func(t *testing.T) {
		hit, _ := IntersectAABB(Ray{
			Origin:    Vector3{-10, 5, 0},
			Direction: Vector3{1, 0, 0},
		}, box)

		require.False(t, hit)
	})
}

func TestAABB(t *testing.T) {
	a := NewAABBFromCenter(Vector3{}, Vector3{2, 2, 2})
	b := NewAABBFromCenter(Vector3{2, 0, 0}, Vector3{2, 2, 2})

	t.Run("touching boxes intersect but do not overlap", func(t *testing.T) {
		require.True(t, a.Intersects(b))
		require.False(t, a.Overlaps(b, Epsilon))
	})

	t.Run("union", func(t *testing.T) {
		u := a.Union(b)
		require.True(t, u.Min.Equal(Vector3{-1, -1, -1}))
		require.True(t, u.Max.Equal(Vector3{3, 1, 1}))
	})

	t.Run("distance to point", func(t *testing.T) {
		require.Zero(t, a.DistanceToPoint(Vector3{0.5, 0, 0}))
		require.True(t, EqualWithEpsilon(2, a.DistanceToPoint(Vector3{3, 0, 0}), Epsilon))
	})

	t.Run("octants tile the box", func(t *testing.T) {
		var union AABB
		for i := 0; i < 8; i++ {
			octant := a.Octant(i)
			require.True(t, octant.Size().EqualWithEpsilon(Vector3{1, 1, 1}, Epsilon))

			if i == 0 {
				union = octant
				continue
			}
			union = union.Union(octant)
		}
		require.Equal(t, a, union)
		require.True(t, a.Octant(7).Min.Equal(Vector3{}))
	})

	t.Run("invalid", func(t *testing.T) {
		require.False(t, AABB{Min: Vector3{1, 0, 0}, Max: Vector3{0, 1, 1}}.IsValid())
		require.False(t, AABB{Max: Vector3{math32.NaN(), 1, 1}}.IsValid())
	})
}
