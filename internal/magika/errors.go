package magika

import "errors"

var (
	// ErrSourceUnavailable is returned when an input cannot be opened or stat'd.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceIO is returned when reading an already opened input fails.
	ErrSourceIO = errors.New("source read failed")
	// ErrConfigInvalid covers malformed model configs and feature length mismatches.
	ErrConfigInvalid = errors.New("invalid model config")
	// ErrInferenceFailure wraps errors reported by the inference engine.
	ErrInferenceFailure = errors.New("inference failed")
	// ErrOutOfRange is returned by strict reads that cross the end of the source.
	ErrOutOfRange = errors.New("read out of range")
)

// ErrorKind maps an error to a stable identifier for reports and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrSourceIO), errors.Is(err, ErrOutOfRange):
		return "source_io"
	case errors.Is(err, ErrConfigInvalid):
		return "config_invalid"
	case errors.Is(err, ErrInferenceFailure):
		return "inference_failure"
	default:
		return "unknown"
	}
}
