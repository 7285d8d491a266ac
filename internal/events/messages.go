package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnandSundar/go-reportsync/report"
)

// ErrInvalidMessage is returned for refresh messages that cannot be handled
var ErrInvalidMessage = errors.New("invalid refresh message")

// RefreshMessage announces that new cost data was ingested for a provider,
// e.g. after a source finished processing. Consumers revalidate every cached
// report of that provider.
type RefreshMessage struct {
	Provider   report.Provider `json:"provider"`
	SourceUUID string          `json:"source_uuid,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewRefreshMessage creates a refresh message stamped with the current time
func NewRefreshMessage(provider report.Provider, sourceUUID string) *RefreshMessage {
	return &RefreshMessage{
		Provider:   provider,
		SourceUUID: sourceUUID,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshMessageFromJSON decodes and checks a message
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.Provider = report.Provider(strings.ToLower(strings.TrimSpace(string(msg.Provider))))
	if msg.Provider == "" {
		return nil, fmt.Errorf("%w: missing provider", ErrInvalidMessage)
	}
	return &msg, nil
}
