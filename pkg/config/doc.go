// Package config loads the arcs tool configuration.
//
// Values come from three layers, later ones winning: the built-in defaults,
// an optional YAML file, and environment variables prefixed with ARCS_:
//
//	planner:
//	  max_population: 100
//	  generation_size: 100
//	  discard_size: 20
//	  timeout: 30s
//	store:
//	  driver: sqlite
//	  path: arcs.db
//	  archive: true
//	policy:
//	  enabled: true
//	  paths: [policies/]
//	script:
//	  path: fitness.star
//	telemetry:
//	  logging:
//	    level: debug
//
// Nested keys map to environment names by prefix, for example
// ARCS_PLANNER_TIMEOUT=10s, ARCS_STORE_PATH=/var/lib/arcs.db or
// ARCS_TELEMETRY_LOG_LEVEL=debug.
package config
