// internal/classify/classifier.go
package classify

import "github.com/tamzrod/baywatch/internal/stream"

// Classifier is a frame classifier with a calibration phase.
// While calibrating it reports no detection.
type Classifier interface {
	stream.Classifier

	// Calibrating reports whether the model is still learning.
	Calibrating() bool

	// Reset discards the model and restarts calibration.
	Reset()
}
