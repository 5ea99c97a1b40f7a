package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// MessageVersion is the current payload version.
const MessageVersion = 1

var ErrMissingDocumentID = errors.New("queue message has no document id")

// Client publishes upload notifications. Delivery is best effort; the
// document lifecycle never waits on it.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Message announces an uploaded document to downstream consumers.
type Message struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	UploadedBy string `json:"uploadedBy"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON body for msg. A zero version is stamped
// with MessageVersion.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON body. Version is left as sent so consumers can
// reject payloads from a newer producer.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	msg.DocumentID = strings.TrimSpace(msg.DocumentID)
	return msg, nil
}
