package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// AncestryResolver resolves a storefront entity to its canonical counterpart,
// creating the canonical entity and its ancestor chain when missing.
type AncestryResolver interface {
	ResolveOrCreate(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error)
}

// ConflictDetector runs the baseline comparison for one product's entity set.
type ConflictDetector interface {
	ProcessImport(ctx context.Context, shopID, canonicalProductID string, incoming []string) (*models.ImportResult, error)
}

// EventSink receives reconciliation events produced while processing a job.
type EventSink interface {
	ConflictDetected(ctx context.Context, record *models.ConflictRecord)
	ImportCompleted(ctx context.Context, job *kafka.ImportJobMessage, result *models.ImportResult, resolved int)
	ImportFailed(ctx context.Context, job *kafka.ImportJobMessage, jobErr error)
}

// Config configures the import job processor
type Config struct {
	// SyncThrottle is the pause between storefront lookups while resolving a
	// job's entities. Remote catalog APIs rate limit aggressively.
	SyncThrottle time.Duration
}

// Processor consumes catalog import jobs and reconciles each product's
// storefront entity set against the canonical catalog.
type Processor struct {
	config   Config
	ancestry AncestryResolver
	detector ConflictDetector
	events   EventSink
	logger   ectologger.Logger

	// Metrics
	jobsProcessed int64
	jobsFailed    int64
	mu            sync.Mutex
}

// NewProcessor creates a new import job processor
func NewProcessor(
	config Config,
	ancestry AncestryResolver,
	detector ConflictDetector,
	events EventSink,
	logger ectologger.Logger,
) *Processor {
	return &Processor{
		config:   config,
		ancestry: ancestry,
		detector: detector,
		events:   events,
		logger:   logger,
	}
}

// HandleMessage is the kafka.MessageHandler entry point
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.ReceivedMessage) error {
	if msg.Job == nil {
		return fmt.Errorf("message at offset %d carries no import job", msg.Offset)
	}
	return p.ProcessJob(ctx, msg.Job)
}

// ProcessJob resolves every storefront entity in the job to a canonical ID,
// then runs the conflict-checked import of the resulting set. Entities the
// storefront no longer knows are dropped from the set with a warning; any
// other resolution failure fails the whole job so the comparison never runs
// against a partial set.
func (p *Processor) ProcessJob(ctx context.Context, job *kafka.ImportJobMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessJob")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":               job.JobID,
		"shop_id":              job.ShopID,
		"canonical_product_id": job.CanonicalProductID,
		"entity_type":          job.EntityType,
	})

	if err := p.validateJob(job); err != nil {
		p.incrementFailed()
		log.WithError(err).Error("rejected malformed import job")
		p.events.ImportFailed(ctx, job, err)
		return err
	}

	entityType := models.EntityType(job.EntityType)
	canonicalIDs := make([]string, 0, len(job.Entities))

	for i, entity := range job.Entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return err
			}
		}

		canonicalID, err := p.ancestry.ResolveOrCreate(ctx, job.ShopID, entityType, entity.ExternalID)
		if err != nil {
			if remote.IsNotFound(err) {
				log.WithError(err).Warnf("storefront no longer knows entity %s, dropping from set", entity.ExternalID)
				continue
			}
			p.incrementFailed()
			log.WithError(err).Errorf("failed to resolve entity %s", entity.ExternalID)
			p.events.ImportFailed(ctx, job, err)
			return err
		}
		canonicalIDs = append(canonicalIDs, canonicalID)
	}

	result, err := p.detector.ProcessImport(ctx, job.ShopID, job.CanonicalProductID, canonicalIDs)
	if err != nil {
		p.incrementFailed()
		log.WithError(err).Error("failed to process import")
		p.events.ImportFailed(ctx, job, err)
		return err
	}

	if result.Conflict != nil {
		p.events.ConflictDetected(ctx, result.Conflict)
	}
	p.events.ImportCompleted(ctx, job, result, len(canonicalIDs))

	p.incrementProcessed()
	log.WithFields(map[string]any{
		"baseline_state": string(result.BaselineState),
		"resolved_count": len(canonicalIDs),
	}).Info("processed import job")

	return nil
}

// Stats returns processing counters
func (p *Processor) Stats() (processed, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobsProcessed, p.jobsFailed
}

func (p *Processor) validateJob(job *kafka.ImportJobMessage) error {
	if job.ShopID == "" {
		return fmt.Errorf("import job %s is missing shop_id", job.JobID)
	}
	if job.CanonicalProductID == "" {
		return fmt.Errorf("import job %s is missing canonical_product_id", job.JobID)
	}
	if job.EntityType == "" {
		return fmt.Errorf("import job %s is missing entity_type", job.JobID)
	}
	return nil
}

func (p *Processor) pause(ctx context.Context) error {
	if p.config.SyncThrottle <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.SyncThrottle):
		return nil
	}
}

func (p *Processor) incrementProcessed() {
	p.mu.Lock()
	p.jobsProcessed++
	p.mu.Unlock()
}

func (p *Processor) incrementFailed() {
	p.mu.Lock()
	p.jobsFailed++
	p.mu.Unlock()
}
