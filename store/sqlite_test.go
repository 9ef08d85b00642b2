package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/laguz/spatial"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "layouts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord() Record {
	return Record{
		FacilityUUID: "facility-1",
		Name:         "warehouse",
		Bounds: spatial.AABB{
			Min: spatial.Vector3{X: -50, Y: -5, Z: -50},
			Max: spatial.Vector3{X: 50, Y: 20, Z: 50},
		},
		Objects: []spatial.Object{
			{
				ID: "b",
				BoundingBox: spatial.AABB{
					Min: spatial.Vector3{X: 1, Y: 0, Z: 1},
					Max: spatial.Vector3{X: 2.5, Y: 1, Z: 1.75},
				},
				Position: spatial.Vector3{X: 1.75, Y: 0.5, Z: 1.375},
				UserData: map[string]any{
					"type":      "desk",
					"rotationY": 0.5,
					"surface":   true,
				},
			},
			{
				ID: "a",
				BoundingBox: spatial.AABB{
					Max: spatial.Vector3{X: 1, Y: 1, Z: 1},
				},
				Position: spatial.Vector3{X: 0.5, Y: 0.5, Z: 0.5},
			},
		},
		SavedAt: time.UnixMilli(1700000000000),
	}
}

func TestSQLiteSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	rec := testRecord()
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, rec.FacilityUUID)
	require.NoError(t, err)
	require.Equal(t, rec.Name, loaded.Name)
	require.Equal(t, rec.Bounds, loaded.Bounds)
	require.True(t, rec.SavedAt.Equal(loaded.SavedAt))
	require.Len(t, loaded.Objects, 2)

	a := loaded.Objects[0]
	require.Equal(t, "a", a.ID)
	require.Equal(t, rec.Objects[1].BoundingBox, a.BoundingBox)
	require.Nil(t, a.UserData)

	b := loaded.Objects[1]
	require.Equal(t, "b", b.ID)
	require.Equal(t, rec.Objects[0].BoundingBox, b.BoundingBox)
	require.Equal(t, rec.Objects[0].Position, b.Position)
	require.Equal(t, "desk", b.UserData["type"])
	require.Equal(t, 0.5, b.UserData["rotationY"])
	require.Equal(t, true, b.UserData["surface"])
}

func TestSQLiteSaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	rec := testRecord()
	require.NoError(t, s.Save(ctx, rec))

	rec.Name = "renamed"
	rec.Objects = rec.Objects[:1]
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, rec.FacilityUUID)
	require.NoError(t, err)
	require.Equal(t, "renamed", loaded.Name)
	require.Len(t, loaded.Objects, 1)
	require.Equal(t, "b", loaded.Objects[0].ID)
}

func TestSQLiteSaveInvalid(t *testing.T) {
	s := newTestSQLite(t)

	err := s.Save(context.Background(), Record{})
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalid))
}

func TestSQLiteNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Load(ctx, "missing")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeNotFound))

	err = s.Delete(ctx, "missing")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeNotFound))
}

func TestSQLiteListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := testRecord()
	require.NoError(t, s.Save(ctx, first))

	second := testRecord()
	second.FacilityUUID = "facility-2"
	second.Objects = nil
	second.SavedAt = first.SavedAt.Add(time.Minute)
	require.NoError(t, s.Save(ctx, second))

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "facility-2", summaries[0].FacilityUUID)
	require.Zero(t, summaries[0].ObjectCount)
	require.Equal(t, "facility-1", summaries[1].FacilityUUID)
	require.Equal(t, 2, summaries[1].ObjectCount)

	require.NoError(t, s.Delete(ctx, "facility-1"))
	_, err = s.Load(ctx, "facility-1")
	require.True(t, errors.IsType(err, ErrTypeNotFound))

	summaries, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
}
