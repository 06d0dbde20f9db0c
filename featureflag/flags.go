package featureflag

type Flag string

const (
	FlagDisableDagazModule Flag = "DISABLE_DAGAZ_MODULE"
	FlagDisableSmokeTest   Flag = "DISABLE_SMOKE_TEST"
	FlagDisableDebugDump   Flag = "DISABLE_DEBUG_DUMP"
)
