// Package integrity computes recording checksums and owns the per-recording
// manifest files that decide whether a video may be deleted from a node.
//
// A manifest is written once, after the recording is finished, and afterwards
// only its offloaded flag changes, through MarkOffloaded, when the station has
// confirmed a verified copy. PurgeOffloaded deletes exactly the artifacts of
// confirmed manifests and nothing else.
package integrity
