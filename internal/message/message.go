// Package message carries the outcome log of an automation run. Each
// step appends messages; a run is clean when no message is error
// severity.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies a run message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the wire name of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ParseSeverity maps a wire name back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity: %q", s)
	}
}

// MarshalJSON encodes the severity as its wire name
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its wire name
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Message is a single timestamped entry in a run's outcome log.
type Message struct {
	Severity Severity  `json:"severity"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
}

// now is swappable in tests
var now = time.Now

// NewInfo creates an info message stamped with the current time
func NewInfo(text string) Message {
	return Message{Severity: SeverityInfo, Text: text, Date: now().UTC()}
}

// NewWarning creates a warning message stamped with the current time
func NewWarning(text string) Message {
	return Message{Severity: SeverityWarning, Text: text, Date: now().UTC()}
}

// NewError creates an error message stamped with the current time
func NewError(text string) Message {
	return Message{Severity: SeverityError, Text: text, Date: now().UTC()}
}

// ErrorFree reports whether no message in the list is error severity.
// An empty list is error free.
func ErrorFree(messages []Message) bool {
	for _, m := range messages {
		if m.Severity == SeverityError {
			return false
		}
	}
	return true
}
