package kafka

import (
	"encoding/json"
	"time"
)

// ImportJobMessage represents an incoming catalog import job. Scheduler
// services publish one message per product whose storefront catalog data
// should be reconciled.
type ImportJobMessage struct {
	// Metadata
	ShopID             string    `json:"shop_id"`
	JobID              string    `json:"job_id"`
	CanonicalProductID string    `json:"canonical_product_id"`
	ProductExternalID  string    `json:"product_external_id"`
	EntityType         string    `json:"entity_type"`
	Timestamp          time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Entities attached to the product on the storefront, in storefront
	// identifier space.
	Entities []ImportEntity `json:"entities"`
}

// ImportEntity is a single storefront entity reference carried by an import job.
type ImportEntity struct {
	ExternalID string `json:"external_id"`
	Label      string `json:"label,omitempty"`
}

// ParseImportJobMessage parses a raw Kafka message into an ImportJobMessage
func ParseImportJobMessage(data []byte) (*ImportJobMessage, error) {
	var msg ImportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SyncEvent represents an outgoing reconciliation event. This is what Sorrel
// produces to the output Kafka topic.
type SyncEvent struct {
	// Event identity
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	// Scope
	ShopID             string `json:"shop_id"`
	EntityType         string `json:"entity_type,omitempty"`
	CanonicalProductID string `json:"canonical_product_id,omitempty"`

	// Event payload, keyed by event type
	Data map[string]any `json:"data,omitempty"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ToJSON serializes the SyncEvent to JSON bytes
func (e *SyncEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// MessageHeaders contains Kafka message headers for efficient filtering
type MessageHeaders struct {
	ShopID      string
	EventType   string
	EntityType  string
	JobID       string
	TraceParent string
	TraceState  string
}

// ToKafkaHeaders converts MessageHeaders to a slice of header key-value pairs
func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 6)

	if h.ShopID != "" {
		headers = append(headers, Header{Key: "shop_id", Value: []byte(h.ShopID)})
	}
	if h.EventType != "" {
		headers = append(headers, Header{Key: "event_type", Value: []byte(h.EventType)})
	}
	if h.EntityType != "" {
		headers = append(headers, Header{Key: "entity_type", Value: []byte(h.EntityType)})
	}
	if h.JobID != "" {
		headers = append(headers, Header{Key: "job_id", Value: []byte(h.JobID)})
	}
	if h.TraceParent != "" {
		headers = append(headers, Header{Key: "traceparent", Value: []byte(h.TraceParent)})
	}
	if h.TraceState != "" {
		headers = append(headers, Header{Key: "tracestate", Value: []byte(h.TraceState)})
	}

	return headers
}

// Header represents a Kafka message header
type Header struct {
	Key   string
	Value []byte
}

// ExtractHeaders extracts MessageHeaders from Kafka headers
func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case "shop_id":
			mh.ShopID = string(h.Value)
		case "event_type":
			mh.EventType = string(h.Value)
		case "entity_type":
			mh.EntityType = string(h.Value)
		case "job_id":
			mh.JobID = string(h.Value)
		case "traceparent":
			mh.TraceParent = string(h.Value)
		case "tracestate":
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}
