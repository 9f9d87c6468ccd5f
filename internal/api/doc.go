// Package api defines the JSON wire types shared by the node HTTP surface,
// the node client used by mesh peers and the station, and the station HTTP
// surface.
//
// Field names use snake_case to stay compatible with existing node firmware
// and dashboards. Timestamps are epoch seconds as float64 where they describe
// recording instants, matching the manifest format.
//
// Source is the provenance marker carried on every control request. Only a
// SourceUser command is relayed to peers; SourceMesh commands are executed
// locally and never re-broadcast.
package api
