// Package model implements the digit classifier and everything needed to
// persist and rebuild it.
//
// The network is fixed: two 3×3 convolution + 2×2 max-pool stages, a 128-unit
// dense hidden layer with dropout, and a 10-way softmax output. Train fits a
// fresh network with Adam on MNIST reference samples plus any correction
// samples, optionally applying random rotation, zoom, and shift. Training
// spreads each mini-batch across worker goroutines and checks the context
// between batches.
//
// ArtifactStore owns the single artifact file. Save writes a CBOR document to a
// temporary file and renames it into place under an exclusive flock, so a
// concurrent Load never sees a partial artifact. Load bootstrap-trains and
// saves a baseline when the artifact is missing or unreadable.
//
// DecodeImage turns arbitrary PNG, JPEG, or GIF bytes into the normalized 28×28
// grayscale input the network expects.
package model
