package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"FEATURE1"})

	t.Run("run if enabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.True(t, runFeature1)

		var runFeature2 bool
		f.IfSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.False(t, runFeature2)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfNotSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.False(t, runFeature1)

		var runFeature2 bool
		f.IfNotSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.True(t, runFeature2)
	})
}

func TestNew(t *testing.T) {
	f := New([]string{" disable_auto_position", "", "STRICT_WORLD_BOUNDS "})

	require.True(t, f.IsSet(FlagDisableAutoPosition))
	require.True(t, f.IsSet(FlagStrictWorldBounds))
	require.False(t, f.IsSet(FlagDisableLayoutBroadcast))
	require.Equal(t, []string{"DISABLE_AUTO_POSITION", "STRICT_WORLD_BOUNDS"}, f.Flags())
}
