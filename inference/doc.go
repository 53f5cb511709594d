// Package inference hosts the noise-model side of the voicecore pipeline:
// the Runtime abstraction over mask-producing models, built-in spectral-gate
// runtimes, asset loading with a hard initialization deadline, and the
// single worker goroutine that keeps model execution out of the real-time
// callback.
//
// A Runtime consumes one log-power feature vector per hop and returns a
// per-bin gain mask. Runtimes are confined to the worker goroutine and may
// allocate and block freely; everything real-time-sensitive lives in the
// audio package.
package inference
