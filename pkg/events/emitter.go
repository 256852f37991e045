package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Event types emitted to the sync events topic
const (
	TypeMappingCreated   = "mapping.created"
	TypeConflictDetected = "conflict.detected"
	TypeOverrideSynced   = "override.synced"
	TypeImportCompleted  = "import.completed"
	TypeImportFailed     = "import.failed"
)

// Publisher publishes sync events to the output topic
type Publisher interface {
	Publish(ctx context.Context, event *kafka.SyncEvent) error
}

// Emitter builds and publishes reconciliation events. Publish failures are
// logged and swallowed so event emission never fails the operation that
// produced it.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// MappingCreated emits a mapping.created event for a new or re-pointed mapping
func (e *Emitter) MappingCreated(ctx context.Context, record *models.MappingRecord) {
	e.emit(ctx, &kafka.SyncEvent{
		EventType:  TypeMappingCreated,
		ShopID:     record.ShopID,
		EntityType: string(record.EntityType),
		Data: map[string]any{
			"mapping_id":     record.ID,
			"canonical_id":   record.CanonicalID,
			"external_id":    record.ExternalID,
			"external_label": record.ExternalLabel,
		},
	})
}

// ConflictDetected emits a conflict.detected event for a diverging re-sync
func (e *Emitter) ConflictDetected(ctx context.Context, record *models.ConflictRecord) {
	e.emit(ctx, &kafka.SyncEvent{
		EventType:          TypeConflictDetected,
		ShopID:             record.ShopID,
		CanonicalProductID: record.CanonicalProductID,
		Data: map[string]any{
			"conflict_id":   record.ID,
			"conflict_type": string(record.ConflictType),
			"canonical_set": []string(record.CanonicalSet),
			"shop_set":      []string(record.ShopSet),
		},
	})
}

// OverrideSynced emits an override.synced event after a remote write confirms
func (e *Emitter) OverrideSynced(ctx context.Context, record *models.OverrideRecord) {
	data := map[string]any{
		"override_id":    record.ID,
		"operation_type": string(record.Operation),
		"sync_status":    string(record.SyncStatus),
	}
	if record.ExternalID != nil {
		data["external_id"] = *record.ExternalID
	}
	e.emit(ctx, &kafka.SyncEvent{
		EventType:          TypeOverrideSynced,
		ShopID:             record.ShopID,
		CanonicalProductID: record.CanonicalProductID,
		Data:               data,
	})
}

// ImportCompleted emits an import.completed event summarizing one processed job
func (e *Emitter) ImportCompleted(ctx context.Context, job *kafka.ImportJobMessage, result *models.ImportResult, resolved int) {
	data := map[string]any{
		"job_id":         job.JobID,
		"baseline_state": string(result.BaselineState),
		"entity_count":   len(job.Entities),
		"resolved_count": resolved,
	}
	if result.Conflict != nil {
		data["conflict_id"] = result.Conflict.ID
	}
	e.emit(ctx, &kafka.SyncEvent{
		EventType:          TypeImportCompleted,
		ShopID:             job.ShopID,
		EntityType:         job.EntityType,
		CanonicalProductID: job.CanonicalProductID,
		TraceID:            job.TraceID,
		SpanID:             job.SpanID,
		Data:               data,
	})
}

// ImportFailed emits an import.failed event when a job cannot be processed
func (e *Emitter) ImportFailed(ctx context.Context, job *kafka.ImportJobMessage, jobErr error) {
	e.emit(ctx, &kafka.SyncEvent{
		EventType:          TypeImportFailed,
		ShopID:             job.ShopID,
		EntityType:         job.EntityType,
		CanonicalProductID: job.CanonicalProductID,
		TraceID:            job.TraceID,
		SpanID:             job.SpanID,
		Data: map[string]any{
			"job_id": job.JobID,
			"error":  jobErr.Error(),
		},
	})
}

func (e *Emitter) emit(ctx context.Context, event *kafka.SyncEvent) {
	event.EventID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"shop_id":    event.ShopID,
		}).Error("failed to publish sync event")
	}
}
