// Package config loads council configuration.
//
// Files may be YAML, TOML or JSON. Every key can be overridden from the
// environment with the COUNCIL_ prefix and dots replaced by underscores:
//
//	COUNCIL_GATEWAY_URL=http://litellm:4000 council ask "..."
//	COUNCIL_PIPELINE_RATIFY_POLICY=always council diamond "..."
//
// Pricing overrides live in a separate TOML file (see LoadPricing) that can
// be hot reloaded with WatchPricing.
package config
