// Package main hosts the pitchcam CLI entrypoint and command graph.
//
// The same binary runs both daemon roles (`pitchcam node run` on each camera
// rig, `pitchcam station run` on the aggregation host) and the operator
// commands that talk to them over HTTP. Configuration resolution lives here;
// everything else is delegated to internal packages.
package main
