package config

import "time"

var (
	ReleaseMetaRequestTimeout      = 10 * time.Second
	MarketStatsRequestTimeout      = 10 * time.Second
	PriceSuggestionsRequestTimeout = 10 * time.Second
	CoverDownloadTimeout           = 30 * time.Second
	GraphCreateContainerTimeout    = 180 * time.Second
	GraphContainerStatusTimeout    = 30 * time.Second
	GraphPublishTimeout            = 180 * time.Second
	GraphAccountLookupTimeout      = 30 * time.Second
)
