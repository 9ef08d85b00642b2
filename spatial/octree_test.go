package spatial

import (
	"fmt"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

var worldBounds = AABB{
	Min: Vector3{-500, -10, -500},
	Max: Vector3{500, 50, 500},
}

func newBox(id string, center Vector3, size Vector3) Object {
	return Object{
		ID:          id,
		BoundingBox: NewAABBFromCenter(center, size),
		Position:    center,
	}
}

func objectIDs(objects []Object) []string {
	ids := make([]string, len(objects))
	for i, o := range objects {
		ids[i] = o.ID
	}
	return ids
}

func TestIndexAddQueryRemove(t *testing.T) {
	idx := NewIndex(worldBounds)

	a := newBox("A", Vector3{}, Vector3{2, 2, 2})
	err := idx.Add(a)
	require.NoError(t, err)

	require.Equal(t, []string{"A"}, objectIDs(idx.QueryPoint(Vector3{})))
	require.Equal(t, 1, idx.Stats().TotalTrackedObjects)

	require.True(t, idx.Remove("A"))
	require.Empty(t, idx.QueryPoint(Vector3{}))
	require.Zero(t, idx.Stats().TotalTrackedObjects)
	require.False(t, idx.Remove("A"))
}

func TestIndexQueryBoundsContainsEveryObject(t *testing.T) {
	idx := NewIndex(worldBounds)

	var objects []Object
	for i := 0; i < 200; i++ {
		o := newBox(
			fmt.Sprintf("obj-%03d", i),
			Vector3{float32(i%20)*3 - 30, 1, float32(i/20)*3 - 15},
			Vector3{1, 2, 1},
		)
		objects = append(objects, o)
		require.NoError(t, idx.Add(o))
	}

	stats := idx.Stats()
	require.Greater(t, stats.TotalNodes, 1)
	require.LessOrEqual(t, stats.MaxDepth, DefaultMaxDepth)
	require.Equal(t, 200, stats.TotalTrackedObjects)

	for _, o := range objects {
		found := idx.QueryBounds(o.BoundingBox)
		require.Contains(t, objectIDs(found), o.ID)
	}
}

func TestIndexStraddlingObject(t *testing.T) {
	idx := NewIndex(
		AABB{Min: Vector3{-10, -10, -10}, Max: Vector3{10, 10, 10}},
		WithMaxObjectsPerNode(2),
	)

	// Fills the root so that it subdivides.
	require.NoError(t, idx.Add(newBox("a", Vector3{5, 5, 5}, Vector3{1, 1, 1})))
	require.NoError(t, idx.Add(newBox("b", Vector3{-5, -5, -5}, Vector3{1, 1, 1})))

	// Crosses the split planes on every axis.
	straddling := newBox("straddling", Vector3{}, Vector3{2, 2, 2})
	require.NoError(t, idx.Add(straddling))

	t.Run("referenced by every intersecting leaf", func(t *testing.T) {
		require.Equal(t, 8, idx.References("straddling"))

		stats := idx.Stats()
		require.Equal(t, 3, stats.TotalTrackedObjects)
		require.Greater(t, stats.LeafObjectRefs, stats.TotalTrackedObjects)
	})

	t.Run("query results are deduplicated", func(t *testing.T) {
		found := idx.QueryBounds(worldBounds)
		require.Equal(t, []string{"a", "b", "straddling"}, objectIDs(found))
	})

	t.Run("remove clears every reference", func(t *testing.T) {
		require.True(t, idx.Remove("straddling"))
		require.Zero(t, idx.References("straddling"))

		stats := idx.Stats()
		require.Equal(t, 2, stats.LeafObjectRefs)
		require.Empty(t, idx.QueryPoint(Vector3{}))
	})
}

func TestIndexReplace(t *testing.T) {
	idx := NewIndex(worldBounds)

	require.NoError(t, idx.Add(newBox("A", Vector3{}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("A", Vector3{100, 0, 0}, Vector3{2, 2, 2})))

	require.Equal(t, 1, idx.Len())
	require.Empty(t, idx.QueryPoint(Vector3{}))
	require.Equal(t, []string{"A"}, objectIDs(idx.QueryPoint(Vector3{100, 0, 0})))
}

func TestIndexOutOfBounds(t *testing.T) {
	outside := newBox("outside", Vector3{1000, 0, 0}, Vector3{2, 2, 2})

	t.Run("retained but not indexed", func(t *testing.T) {
		idx := NewIndex(worldBounds)
		require.NoError(t, idx.Add(outside))

		_, ok := idx.Get("outside")
		require.True(t, ok)
		require.Empty(t, idx.QueryPoint(Vector3{1000, 0, 0}))

		stats := idx.Stats()
		require.Equal(t, 1, stats.TotalTrackedObjects)
		require.Equal(t, 1, stats.UnindexedObjects)
	})

	t.Run("rejected with strict bounds", func(t *testing.T) {
		idx := NewIndex(worldBounds, WithStrictBounds())

		err := idx.Add(outside)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeOutOfBounds))
		require.Zero(t, idx.Len())
	})
}

func TestIndexInvalidGeometry(t *testing.T) {
	idx := NewIndex(worldBounds)

	err := idx.Add(Object{
		ID: "inverted",
		BoundingBox: AABB{
			Min: Vector3{1, 1, 1},
			Max: Vector3{0, 0, 0},
		},
	})
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidGeometry))
	require.Zero(t, idx.Len())
}

func TestIndexQueryRadius(t *testing.T) {
	idx := NewIndex(worldBounds)
	require.NoError(t, idx.Add(newBox("near", Vector3{3, 0, 0}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("corner", Vector3{3, 0, 3}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("far", Vector3{20, 0, 0}, Vector3{2, 2, 2})))

	// "corner" closest point is (2, 0, 2), at ~2.83 from the origin. It is
	// inside the square prefilter but outside the radius.
	found := idx.QueryRadius(Vector3{}, 2.5)
	require.Equal(t, []string{"near"}, objectIDs(found))

	require.Nil(t, idx.QueryRadius(Vector3{}, -1))
}

func TestIndexRaycast(t *testing.T) {
	idx := NewIndex(worldBounds)
	require.NoError(t, idx.Add(newBox("third", Vector3{30, 0, 0}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("first", Vector3{10, 0, 0}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("second", Vector3{20, 0, 0}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("aside", Vector3{20, 0, 10}, Vector3{2, 2, 2})))

	ray := Ray{Origin: Vector3{}, Direction: Vector3{1, 0, 0}}

	t.Run("sorted by distance", func(t *testing.T) {
		hits := idx.Raycast(ray, 100)
		require.Len(t, hits, 3)

		for i, id := range []string{"first", "second", "third"} {
			require.Equal(t, id, hits[i].Object.ID)
		}
		for i := 1; i < len(hits); i++ {
			require.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
		}
		require.True(t, EqualWithEpsilon(9, hits[0].Distance, Epsilon))
		require.True(t, hits[0].Point.EqualWithEpsilon(Vector3{9, 0, 0}, Epsilon))
	})

	t.Run("truncated to max distance", func(t *testing.T) {
		hits := idx.Raycast(ray, 20)
		require.Len(t, hits, 2)

		for _, h := range hits {
			require.LessOrEqual(t, h.Distance, float32(20))
		}
	})

	t.Run("unbounded distance", func(t *testing.T) {
		hits := idx.Raycast(ray, math32.Inf(1))
		require.Len(t, hits, 3)
	})
}

func TestIndexCheckCollisions(t *testing.T) {
	idx := NewIndex(worldBounds)
	require.NoError(t, idx.Add(newBox("self", Vector3{}, Vector3{2, 2, 2})))
	require.NoError(t, idx.Add(newBox("other", Vector3{1.5, 0, 0}, Vector3{2, 2, 2})))

	box := NewAABBFromCenter(Vector3{}, Vector3{2, 2, 2})

	collisions := idx.CheckCollisions(box, "self")
	require.Equal(t, []string{"other"}, objectIDs(collisions))

	collisions = idx.CheckCollisions(box, "")
	require.Equal(t, []string{"other", "self"}, objectIDs(collisions))
}

func TestIndexRebuild(t *testing.T) {
	idx := NewIndex(worldBounds, WithMaxObjectsPerNode(1))

	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Add(newBox(fmt.Sprintf("%02d", i), Vector3{float32(i), 0, 0}, Vector3{0.5, 0.5, 0.5})))
	}
	for i := 0; i < 48; i++ {
		require.True(t, idx.Remove(fmt.Sprintf("%02d", i)))
	}

	before := idx.Stats()
	idx.Rebuild()
	after := idx.Stats()

	require.Less(t, after.TotalNodes, before.TotalNodes)
	require.Equal(t, 2, after.TotalTrackedObjects)
	require.Equal(t, []string{"48", "49"}, objectIDs(idx.Objects()))
	require.Equal(t, []string{"49"}, objectIDs(idx.QueryPoint(Vector3{49, 0, 0})))
}

func TestIndexClear(t *testing.T) {
	idx := NewIndex(worldBounds)
	require.NoError(t, idx.Add(newBox("A", Vector3{}, Vector3{2, 2, 2})))

	idx.Clear()
	require.Zero(t, idx.Len())
	require.Equal(t, 1, idx.Stats().TotalNodes)
	require.Empty(t, idx.QueryBounds(worldBounds))
}

func TestIndexGetReturnsCopy(t *testing.T) {
	idx := NewIndex(worldBounds)

	o := newBox("A", Vector3{}, Vector3{2, 2, 2})
	o.UserData = map[string]any{"type": "desk"}
	require.NoError(t, idx.Add(o))

	got, ok := idx.Get("A")
	require.True(t, ok)
	got.UserData["type"] = "sink"

	got, _ = idx.Get("A")
	require.Equal(t, "desk", got.StringData("type"))
}
