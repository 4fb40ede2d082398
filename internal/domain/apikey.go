package domain

// APIKey is the typed per-key policy record. The free-form fallback and
// sampling settings of older deployments are enumerated fields here.
type APIKey struct {
	Key           string `db:"valid_key"`
	MaxReq        int    `db:"maxreq"` // 0 means unlimited
	AllowLocate   bool   `db:"allow_locate"`
	AllowRegion   bool   `db:"allow_region"`
	AllowFallback bool   `db:"allow_fallback"`

	FallbackName        string `db:"fallback_name"`
	FallbackURL         string `db:"fallback_url"`
	FallbackRateLimit   int    `db:"fallback_ratelimit"`
	FallbackCacheExpire int    `db:"fallback_cache_expire"` // seconds

	// Percent of accepted queries re-enqueued as reports, 0-100.
	StoreSampleLocate int `db:"store_sample_locate"`
	StoreSampleSubmit int `db:"store_sample_submit"`
}

// FallbackCacheSeconds returns the configured fallback cache TTL with the
// 24 hour default applied.
func (k *APIKey) FallbackCacheSeconds() int {
	if k.FallbackCacheExpire <= 0 {
		return 86400
	}
	return k.FallbackCacheExpire
}

// ExportConfig describes one configured report export target. The export
// runners themselves are external consumers of the store.
type ExportConfig struct {
	Name        string `db:"name"`
	Batch       int    `db:"batch"`
	Schema      string `db:"schema"`
	URL         string `db:"url"`
	SkipKeys    string `db:"skip_keys"`
	SkipSources string `db:"skip_sources"`
}
