package index

import (
	"fmt"
	"strings"

	"github.com/abelbrown/iasi/internal/signal"
)

// ConfigurationError reports an invalid weight set or band list. It is
// returned at construction time; an Engine never holds a bad configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "index configuration: " + e.Reason
}

// MissingSignalError is returned by CalculateIndex when one or more channels
// have no signal. Missing lists every absent channel in canonical order.
type MissingSignalError struct {
	Missing []signal.Channel
}

func (e *MissingSignalError) Error() string {
	codes := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		codes[i] = c.Code()
	}
	return fmt.Sprintf("missing signals: %s", strings.Join(codes, ", "))
}
