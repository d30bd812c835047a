package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigMissing     = errors.New("configuration key missing")
	ErrVolumeNotMounted  = errors.New("volume not mounted")
	ErrLockHeld          = errors.New("sync lock held")
	ErrDestinationExists = errors.New("destination already exists")
	ErrExternalTool      = errors.New("external tool error")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error should abort the whole run. Structural
// problems (bad config, unmounted volumes, held locks, destination collisions,
// rejected input) are fatal; external tool exits are reported and the batch
// continues.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrExternalTool):
		return false
	case errors.Is(err, ErrConfigMissing),
		errors.Is(err, ErrVolumeNotMounted),
		errors.Is(err, ErrLockHeld),
		errors.Is(err, ErrDestinationExists),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound):
		return true
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
