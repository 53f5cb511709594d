package inference

// Runtime is a loaded noise-suppression model. Infer maps a log-power
// feature vector (one entry per frequency bin) to a gain mask of the same
// length with entries in [0, 1].
//
// Implementations run on the inference worker goroutine only and need not
// be safe for concurrent use.
type Runtime interface {
	Infer(feature []float64) ([]float64, error)
	Close() error
}
