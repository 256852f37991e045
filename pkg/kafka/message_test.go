package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImportJobMessage(t *testing.T) {
	jsonData := `{
		"shop_id": "550e8400-e29b-41d4-a716-446655440000",
		"job_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"canonical_product_id": "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		"product_external_id": "ps-1001",
		"entity_type": "category",
		"timestamp": "2026-01-15T10:30:00Z",
		"trace_id": "abc123",
		"span_id": "def456",
		"entities": [
			{"external_id": "ps-55", "label": "Laptops"},
			{"external_id": "ps-77"}
		]
	}`

	msg, err := ParseImportJobMessage([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", msg.ShopID)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", msg.JobID)
	assert.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", msg.CanonicalProductID)
	assert.Equal(t, "ps-1001", msg.ProductExternalID)
	assert.Equal(t, "category", msg.EntityType)
	assert.Equal(t, "abc123", msg.TraceID)
	assert.Equal(t, "def456", msg.SpanID)

	require.Len(t, msg.Entities, 2)
	assert.Equal(t, "ps-55", msg.Entities[0].ExternalID)
	assert.Equal(t, "Laptops", msg.Entities[0].Label)
	assert.Equal(t, "ps-77", msg.Entities[1].ExternalID)
	assert.Empty(t, msg.Entities[1].Label)
}

func TestParseImportJobMessage_InvalidJSON(t *testing.T) {
	_, err := ParseImportJobMessage([]byte(`{"shop_id": `))
	require.Error(t, err)
}

func TestSyncEventToJSON(t *testing.T) {
	event := &SyncEvent{
		EventID:    "evt-1",
		EventType:  "mapping.created",
		Timestamp:  time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		ShopID:     "shop-1",
		EntityType: "category",
		Data: map[string]any{
			"canonical_id": "can-1",
			"external_id":  "ps-55",
		},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	parsed := &SyncEvent{}
	require.NoError(t, json.Unmarshal(data, parsed))
	assert.Equal(t, event.EventID, parsed.EventID)
	assert.Equal(t, event.EventType, parsed.EventType)
	assert.Equal(t, "can-1", parsed.Data["canonical_id"])
}

func TestHeadersRoundTrip(t *testing.T) {
	headers := MessageHeaders{
		ShopID:      "shop-1",
		EventType:   "conflict.detected",
		EntityType:  "category",
		JobID:       "job-1",
		TraceParent: "00-abc-def-01",
	}

	extracted := ExtractHeaders(headers.ToKafkaHeaders())
	assert.Equal(t, headers, extracted)
}
