// Package preflight provides readiness checks for the resources and paths a
// pitchcam node or station depends on.
//
// These checks run in two contexts:
//   - The recorder calls Checker.Check before every session start. A failure
//     rejects the request without touching recorder state.
//   - The CLI "node check" command and the GET /api/v1/preflight route use
//     RunNode / RunStation to display a full readiness report.
package preflight
