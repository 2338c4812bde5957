// Package inference serves digit predictions from the current model artifact.
//
// The Service publishes each loaded network through an atomic pointer so a
// prediction always runs start to finish against one model version while a
// reload swaps in the next one.
package inference
