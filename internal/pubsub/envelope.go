// SPDX-License-Identifier: MIT

// Package pubsub decodes push-subscription envelopes delivered to the
// worker's HTTP endpoint.
package pubsub

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/clinirec/analysis-worker/internal/event"
)

// Envelope is the push-delivery wrapper around a single message.
type Envelope struct {
	Message      Message `json:"message"`
	Subscription string  `json:"subscription"`
}

// Message carries the notification payload and its attributes.
type Message struct {
	Data        string            `json:"data"` // base64-encoded JSON
	Attributes  map[string]string `json:"attributes"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
}

// payload mirrors the storage notification JSON carried in Message.Data.
// Older notification formats use bucketId/objectId, newer ones bucket/name.
type payload struct {
	EventType string `json:"eventType"`
	Bucket    string `json:"bucket"`
	BucketID  string `json:"bucketId"`
	Name      string `json:"name"`
	ObjectID  string `json:"objectId"`
}

// Decode parses a push envelope from r.
func Decode(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("pubsub: decode envelope: %w", err)
	}
	return &env, nil
}

// StorageObject extracts the storage notification, preferring the decoded
// data payload and falling back to message attributes for missing fields.
func (e *Envelope) StorageObject() event.StorageObject {
	var p payload
	if raw, err := decodeBase64(e.Message.Data); err == nil {
		_ = json.Unmarshal(raw, &p)
	}

	attrs := e.Message.Attributes
	evt := event.StorageObject{
		EventType: firstNonEmpty(p.EventType, attrs["eventType"]),
		Bucket:    firstNonEmpty(p.Bucket, p.BucketID, attrs["bucketId"]),
		Name:      firstNonEmpty(p.Name, p.ObjectID, attrs["objectId"]),
	}
	return evt
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("pubsub: empty data")
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("pubsub: undecodable data")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
