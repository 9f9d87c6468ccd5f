// Package services defines shared utilities consumed by the node and station
// components.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, node IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently (precondition vs transient vs integrity) and
//     translated into HTTP status codes.
//
// Use these helpers when wiring new component logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
