// Mercator Ganymede is an admission gateway for a rate-limited LLM upstream.
//
// It fronts the upstream messages API for many concurrent feature
// endpoints, providing:
//   - Credential rotation with per-key quota tracking and circuit breaking
//   - Exact and semantic response caching
//   - Deferred processing through a job queue with a dead-letter path
//   - Aggregated health and Prometheus metrics for operators
//
// Usage:
//
//	# Start the gateway with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /etc/ganymede/config.yaml
//
//	# Check a configuration file without starting
//	ganymede validate --config /etc/ganymede/config.yaml
//
//	# Show version information
//	ganymede version
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
