package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds raised by the ripping pipeline. Engine-fatal kinds stop the
// queue; per-track kinds fail one track and let the queue advance.
var (
	ErrAuth              = errors.New("authentication failed")
	ErrTrackUnavailable  = errors.New("track unavailable")
	ErrTransientDelivery = errors.New("transient delivery failure")
	ErrEncoderSpawn      = errors.New("encoder spawn failure")
	ErrEncoderRuntime    = errors.New("encoder failure")
	ErrTagging           = errors.New("tagging failure")
	ErrAborted           = errors.New("abort requested")

	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrExternalTool  = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must stop the whole run rather than one track.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrEncoderSpawn) || errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether the track that produced err may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientDelivery) && !errors.Is(err, ErrAborted)
}

// Kind returns a short label for the first marker err carries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTrackUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTransientDelivery):
		return "transient"
	case errors.Is(err, ErrEncoderSpawn):
		return "encoder_spawn"
	case errors.Is(err, ErrEncoderRuntime):
		return "encoder"
	case errors.Is(err, ErrTagging):
		return "tagging"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
