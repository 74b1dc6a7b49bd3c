// Package signal normalizes raw observations from the five monitored channels
// onto a common [0,1] scale and keeps a per-channel history of them.
package signal

import (
	"fmt"
	"strings"
)

// Channel identifies one of the five observational sources.
// The set is closed: every valid Channel is listed in Channels.
type Channel uint8

const (
	Animals     Channel = iota // A: anomalous animal behaviour
	Radon                      // R: radon gas levels
	Deformation                // D: InSAR ground deformation
	Marine                     // M: marine anomalies
	Sensors                    // S: seismic sensor activity

	// NumChannels is the cardinality of the enumeration. Arrays indexed by
	// Channel are sized with it so completeness is checked by the compiler.
	NumChannels = 5
)

// Channels lists every channel in canonical order (A, R, D, M, S).
var Channels = [NumChannels]Channel{Animals, Radon, Deformation, Marine, Sensors}

var (
	codes = [NumChannels]string{"A", "R", "D", "M", "S"}
	names = [NumChannels]string{"animals", "radon", "deformation", "marine", "sensors"}
	// greek keys are the legacy weight names used by the batch configs.
	greek = [NumChannels]string{"alpha", "beta", "gamma", "delta", "epsilon"}
)

// Valid reports whether c is one of the five channels.
func (c Channel) Valid() bool { return c < NumChannels }

// Code returns the single-letter code ("A", "R", ...).
func (c Channel) Code() string {
	if !c.Valid() {
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
	return codes[c]
}

// Name returns the lower-case descriptive name.
func (c Channel) Name() string {
	if !c.Valid() {
		return c.Code()
	}
	return names[c]
}

func (c Channel) String() string { return c.Code() }

// MarshalText encodes a channel as its code so maps keyed by Channel
// serialize as {"A": ...}.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, &UnknownChannelError{Name: c.Code()}
	}
	return []byte(c.Code()), nil
}

// UnmarshalText accepts anything ParseChannel accepts.
func (c *Channel) UnmarshalText(b []byte) error {
	ch, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}

// ParseChannel resolves a channel from its code ("A"), its name ("animals")
// or its legacy weight key ("alpha"). Matching is case-insensitive.
func ParseChannel(s string) (Channel, error) {
	key := strings.TrimSpace(s)
	for _, c := range Channels {
		if strings.EqualFold(key, codes[c]) || strings.EqualFold(key, names[c]) || strings.EqualFold(key, greek[c]) {
			return c, nil
		}
	}
	return 0, &UnknownChannelError{Name: s}
}

// UnknownChannelError is returned when a channel outside the enumeration is
// ingested or parsed.
type UnknownChannelError struct {
	Name string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("unknown signal channel %q (must be one of %s)", e.Name, strings.Join(codes[:], ", "))
}
