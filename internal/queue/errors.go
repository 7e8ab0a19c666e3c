package queue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition indicates a status change outside the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound indicates the requested queue row does not exist.
var ErrNotFound = errors.New("queue item not found")

func invalidTransitionError(requestID int64, from, to Status) error {
	allowed := AllowedTargets(from)
	names := make([]string, len(allowed))
	for i, status := range allowed {
		names[i] = string(status)
	}
	allowedStr := strings.Join(names, ", ")
	if allowedStr == "" {
		allowedStr = "none"
	}
	return fmt.Errorf("%w: r/%d %s -> %s (allowed: %s)", ErrInvalidTransition, requestID, from, to, allowedStr)
}

func notFoundError(requestID int64) error {
	return fmt.Errorf("%w: r/%d", ErrNotFound, requestID)
}
