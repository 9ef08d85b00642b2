package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
definitions:
  - type: pallet
    dimensions: {width: 1.2, height: 0.15, depth: 0.8}
    clearances: {front: 0.5}
  - type: camera
    dimensions: {width: 0.1, height: 0.1, depth: 0.1}
    placement_type: ceiling
`

func TestDefault(t *testing.T) {
	c := Default()

	for _, typ := range []string{
		"server_rack",
		"storage_rack",
		"workbench",
		"desk",
		"cabinet",
		"light_fixture",
		"wall_panel",
		"sink",
		"electrical_panel",
	} {
		d, ok := c.Get(typ)
		require.True(t, ok, typ)
		require.Equal(t, typ, d.Type)
		require.NoError(t, validate(d), typ)
	}

	_, ok := c.Get("spaceship")
	require.False(t, ok)
}

func TestCatalogSetReplace(t *testing.T) {
	c := New()
	c.Set(Definition{Type: "b"})
	c.Set(Definition{Type: "a"})
	require.Equal(t, []string{"a", "b"}, c.Types())

	c.Replace([]Definition{{Type: "c"}})
	require.Equal(t, []string{"c"}, c.Types())
	require.Len(t, c.Definitions(), 1)
}

func TestPlacementTypeCompatibleWith(t *testing.T) {
	require.True(t, PlacementFloor.CompatibleWith(""))
	require.True(t, PlacementFloor.CompatibleWith(PlacementAny))
	require.True(t, PlacementAny.CompatibleWith(PlacementWall))
	require.True(t, PlacementWall.CompatibleWith(PlacementWall))
	require.False(t, PlacementWall.CompatibleWith(PlacementFloor))
}

func TestParse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		definitions, err := Parse([]byte(testCatalog))
		require.NoError(t, err)
		require.Len(t, definitions, 2)

		require.Equal(t, "pallet", definitions[0].Type)
		require.Equal(t, PlacementFloor, definitions[0].PlacementType)
		require.Equal(t, float32(0.5), definitions[0].Clearances.Front)
		require.Equal(t, PlacementCeiling, definitions[1].PlacementType)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Parse([]byte(`
definitions:
  - dimensions: {width: 1, height: 1, depth: 1}
`))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidDefinition))
	})

	t.Run("zero dimension", func(t *testing.T) {
		_, err := Parse([]byte(`
definitions:
  - type: flat
    dimensions: {width: 1, height: 0, depth: 1}
`))
		require.Error(t, err)
	})

	t.Run("unknown placement type", func(t *testing.T) {
		_, err := Parse([]byte(`
definitions:
  - type: bird
    dimensions: {width: 1, height: 1, depth: 1}
    placement_type: sky
`))
		require.Error(t, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := Parse([]byte(`
definitions:
  - type: box
    dimensions: {width: 1, height: 1, depth: 1}
  - type: box
    dimensions: {width: 2, height: 2, depth: 2}
`))
		require.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Parse([]byte("definitions: ["))
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	err := os.WriteFile(path, []byte(testCatalog), 0o644)
	require.NoError(t, err)

	definitions, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, definitions, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	err := os.WriteFile(path, []byte(testCatalog), 0o644)
	require.NoError(t, err)

	c := Default()
	reloads := make(chan error, 10)
	w := &Watcher{
		Catalog:        c,
		Path:           path,
		DebouncePeriod: 10 * time.Millisecond,
		OnReload: func(err error) {
			reloads <- err
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx)
	}()

	// The watch is set asynchronously and reloads from previous writes can
	// still be pending: writes are repeated until a matching reload is seen.
	updateUntilReload := func(t *testing.T, content string, failed bool) {
		deadline := time.After(5 * time.Second)

		for {
			err := os.WriteFile(path, []byte(content), 0o644)
			require.NoError(t, err)

			select {
			case err := <-reloads:
				if (err != nil) == failed {
					return
				}
			case <-time.After(100 * time.Millisecond):
			case <-deadline:
				require.FailNow(t, "catalog was not reloaded")
			}
		}
	}

	t.Run("reload on change", func(t *testing.T) {
		updateUntilReload(t, testCatalog, false)
		require.Equal(t, []string{"camera", "pallet"}, c.Types())
	})

	t.Run("failed reload keeps definitions", func(t *testing.T) {
		updateUntilReload(t, "definitions: [", true)
		require.Equal(t, []string{"camera", "pallet"}, c.Types())
	})

	cancel()
	require.NoError(t, <-done)
}
