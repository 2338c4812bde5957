// Package preflight provides readiness checks for the filesystem paths, the
// model artifact, the MNIST dataset, and the corrections database that
// digitflow depends on.
//
// These checks run in two contexts:
//   - "digitflow serve" and "digitflow scheduler" call RunAll at startup and
//     log failures before the first load or cycle.
//   - The CLI "digitflow status" command renders every Result, plus
//     CheckInferenceService against the configured reload URL.
package preflight
