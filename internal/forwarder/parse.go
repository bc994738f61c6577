package forwarder

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// topicSegments is the exact shape accepted: <prefix>/<measurement>/<tag>.
const topicSegments = 3

// ParseTopic splits topic into its measurement and tag segments. ok is false
// unless the topic has exactly three non-empty segments and the first equals
// prefix.
func ParseTopic(prefix, topic string) (measurement, tag string, ok bool) {
	segments := strings.Split(topic, "/")
	if len(segments) != topicSegments || segments[0] != prefix {
		return "", "", false
	}
	if segments[1] == "" || segments[2] == "" {
		return "", "", false
	}
	return segments[1], segments[2], true
}

// ParsePayload interprets payload as UTF-8 text holding a finite decimal
// number. Surrounding whitespace is ignored.
func ParsePayload(payload []byte) (float64, error) {
	if !utf8.Valid(payload) {
		return 0, fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidPayload)
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPayload, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidPayload, text)
	}

	return value, nil
}
