// Package notifications delivers station events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Enumerated event
// types cover the pipeline milestones an operator needs to act on: a stitched
// session is ready, a session was dead-lettered, or a download was
// quarantined after a checksum mismatch.
package notifications
