package featureflag

type Flag string

const (
	// Rejects the objects that are not entirely inside the facility bounds
	// instead of keeping them unindexed.
	FlagStrictWorldBounds Flag = "STRICT_WORLD_BOUNDS"

	FlagDisableLayoutBroadcast Flag = "DISABLE_LAYOUT_BROADCAST"
	FlagDisableAutoPosition    Flag = "DISABLE_AUTO_POSITION"
)
