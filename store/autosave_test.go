package store

import (
	"context"
	"testing"

	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/models"
	"github.com/aukilabs/laguz/spatial"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	records []Record
}

func (s *recordingSaver) Save(ctx context.Context, r Record) error {
	s.records = append(s.records, r)
	return nil
}

func TestAutosaverSaveModified(t *testing.T) {
	ctx := context.Background()
	facilities := &models.FacilityStore{}

	f := models.NewFacility(facilities.NewID(), models.FacilityConfig{
		Name: "warehouse",
		Bounds: spatial.AABB{
			Min: spatial.Vector3{X: -50, Y: -5, Z: -50},
			Max: spatial.Vector3{X: 50, Y: 20, Z: 50},
		},
		Library: catalog.Default(),
	})
	require.NoError(t, facilities.Add(ctx, f))

	saver := &recordingSaver{}
	a := Autosaver{Saver: saver, Facilities: facilities}

	require.Zero(t, a.SaveModified(ctx))

	res := f.Commands.PlaceObject("desk", spatial.Vector3{}, command.DefaultPlaceOptions())
	require.True(t, res.Success)
	require.Equal(t, 1, a.SaveModified(ctx))
	require.Zero(t, a.SaveModified(ctx))

	require.Len(t, saver.records, 1)
	require.Equal(t, f.FacilityUUID, saver.records[0].FacilityUUID)
	require.Len(t, saver.records[0].Objects, 1)

	res = f.Commands.RemoveObject(res.ObjectIDs[0])
	require.True(t, res.Success)
	a.MarkSaved(f)
	require.Zero(t, a.SaveModified(ctx))
}

func TestAutosaverWithSQLite(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	facilities := &models.FacilityStore{}

	f := models.NewFacility(facilities.NewID(), models.FacilityConfig{
		Name: "lab",
		Bounds: spatial.AABB{
			Min: spatial.Vector3{X: -50, Y: -5, Z: -50},
			Max: spatial.Vector3{X: 50, Y: 20, Z: 50},
		},
		Library: catalog.Default(),
	})
	require.NoError(t, facilities.Add(ctx, f))

	res := f.Commands.PlaceWall(spatial.Vector3{}, spatial.Vector3{X: 4}, command.DefaultWallOptions())
	require.True(t, res.Success)

	a := Autosaver{Saver: s, Facilities: facilities}
	require.Equal(t, 1, a.SaveModified(ctx))

	rec, err := s.Load(ctx, f.FacilityUUID)
	require.NoError(t, err)
	require.Equal(t, "lab", rec.Name)
	require.Equal(t, f.Index.Bounds(), rec.Bounds)
	require.Len(t, rec.Objects, 1)
	require.Equal(t, res.ObjectIDs[0], rec.Objects[0].ID)
	require.Equal(t, command.TypeWall, rec.Objects[0].StringData(command.DataKeyType))
}
