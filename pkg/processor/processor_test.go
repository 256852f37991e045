package processor

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
)

type fakeAncestry struct {
	byExternal map[string]string
	errs       map[string]error
	resolved   []string
}

func (f *fakeAncestry) ResolveOrCreate(_ context.Context, _ string, _ models.EntityType, externalID string) (string, error) {
	f.resolved = append(f.resolved, externalID)
	if err, ok := f.errs[externalID]; ok {
		return "", err
	}
	if id, ok := f.byExternal[externalID]; ok {
		return id, nil
	}
	return "", remote.NotFoundError("FetchEntity", "entity "+externalID+" not found")
}

type fakeDetector struct {
	result   *models.ImportResult
	err      error
	shopID   string
	product  string
	incoming []string
	calls    int
}

func (f *fakeDetector) ProcessImport(_ context.Context, shopID, canonicalProductID string, incoming []string) (*models.ImportResult, error) {
	f.calls++
	f.shopID = shopID
	f.product = canonicalProductID
	f.incoming = incoming
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEvents struct {
	conflicts []*models.ConflictRecord
	completed []*models.ImportResult
	failed    []error
}

func (f *fakeEvents) ConflictDetected(_ context.Context, record *models.ConflictRecord) {
	f.conflicts = append(f.conflicts, record)
}

func (f *fakeEvents) ImportCompleted(_ context.Context, _ *kafka.ImportJobMessage, result *models.ImportResult, _ int) {
	f.completed = append(f.completed, result)
}

func (f *fakeEvents) ImportFailed(_ context.Context, _ *kafka.ImportJobMessage, jobErr error) {
	f.failed = append(f.failed, jobErr)
}

type fixture struct {
	processor *Processor
	ancestry  *fakeAncestry
	detector  *fakeDetector
	events    *fakeEvents
}

func newFixture() *fixture {
	ancestry := &fakeAncestry{
		byExternal: map[string]string{},
		errs:       map[string]error{},
	}
	detector := &fakeDetector{
		result: &models.ImportResult{BaselineState: models.BaselineStateMatches},
	}
	events := &fakeEvents{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	return &fixture{
		processor: NewProcessor(Config{SyncThrottle: time.Millisecond}, ancestry, detector, events, logger),
		ancestry:  ancestry,
		detector:  detector,
		events:    events,
	}
}

func testJob(entities ...string) *kafka.ImportJobMessage {
	job := &kafka.ImportJobMessage{
		ShopID:             "shop-1",
		JobID:              "job-1",
		CanonicalProductID: "prod-1",
		ProductExternalID:  "ps-prod-1",
		EntityType:         string(models.EntityTypeCategory),
	}
	for _, ext := range entities {
		job.Entities = append(job.Entities, kafka.ImportEntity{ExternalID: ext})
	}
	return job
}

func TestProcessor_ProcessJob(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves every entity and runs the import", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.ancestry.byExternal["ext-2"] = "can-2"

		err := f.processor.ProcessJob(ctx, testJob("ext-1", "ext-2"))
		require.NoError(t, err)

		assert.Equal(t, []string{"ext-1", "ext-2"}, f.ancestry.resolved)
		assert.Equal(t, 1, f.detector.calls)
		assert.Equal(t, "shop-1", f.detector.shopID)
		assert.Equal(t, "prod-1", f.detector.product)
		assert.Equal(t, []string{"can-1", "can-2"}, f.detector.incoming)

		require.Len(t, f.events.completed, 1)
		assert.Empty(t, f.events.conflicts)
		assert.Empty(t, f.events.failed)

		processed, failed := f.processor.Stats()
		assert.Equal(t, int64(1), processed)
		assert.Equal(t, int64(0), failed)
	})

	t.Run("drops entities the storefront no longer knows", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"

		err := f.processor.ProcessJob(ctx, testJob("ext-1", "ext-gone"))
		require.NoError(t, err)

		assert.Equal(t, []string{"can-1"}, f.detector.incoming)
		assert.Len(t, f.events.completed, 1)
		assert.Empty(t, f.events.failed)
	})

	t.Run("fails the job on a transient resolution error", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.ancestry.errs["ext-2"] = remote.TransientError("FetchEntity", "rate limited", nil)

		err := f.processor.ProcessJob(ctx, testJob("ext-1", "ext-2"))
		require.Error(t, err)
		assert.True(t, remote.IsTransient(err))

		assert.Equal(t, 0, f.detector.calls)
		require.Len(t, f.events.failed, 1)
		assert.Empty(t, f.events.completed)

		_, failed := f.processor.Stats()
		assert.Equal(t, int64(1), failed)
	})

	t.Run("emits conflict detected for a diverging set", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.detector.result = &models.ImportResult{
			BaselineState: models.BaselineStateDiverges,
			Conflict: &models.ConflictRecord{
				ID:                 "conf-1",
				ShopID:             "shop-1",
				CanonicalProductID: "prod-1",
			},
		}

		err := f.processor.ProcessJob(ctx, testJob("ext-1"))
		require.NoError(t, err)

		require.Len(t, f.events.conflicts, 1)
		assert.Equal(t, "conf-1", f.events.conflicts[0].ID)
		require.Len(t, f.events.completed, 1)
		assert.Equal(t, models.BaselineStateDiverges, f.events.completed[0].BaselineState)
	})

	t.Run("fails the job when the import cannot be recorded", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.detector.err = assert.AnError

		err := f.processor.ProcessJob(ctx, testJob("ext-1"))
		require.Error(t, err)
		require.Len(t, f.events.failed, 1)
		assert.Empty(t, f.events.completed)
	})

	t.Run("rejects a job without a shop", func(t *testing.T) {
		f := newFixture()
		job := testJob("ext-1")
		job.ShopID = ""

		err := f.processor.ProcessJob(ctx, job)
		require.Error(t, err)
		assert.Empty(t, f.ancestry.resolved)
		require.Len(t, f.events.failed, 1)
	})

	t.Run("stops between entities when the context is cancelled", func(t *testing.T) {
		f := newFixture()
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.ancestry.byExternal["ext-2"] = "can-2"

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := f.processor.ProcessJob(cancelled, testJob("ext-1", "ext-2"))
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, f.detector.calls)
	})
}

func TestProcessor_HandleMessage(t *testing.T) {
	f := newFixture()
	f.ancestry.byExternal["ext-1"] = "can-1"

	t.Run("processes the parsed job", func(t *testing.T) {
		msg := &kafka.ReceivedMessage{Job: testJob("ext-1")}
		require.NoError(t, f.processor.HandleMessage(context.Background(), msg))
		assert.Equal(t, 1, f.detector.calls)
	})

	t.Run("rejects a message without a job", func(t *testing.T) {
		err := f.processor.HandleMessage(context.Background(), &kafka.ReceivedMessage{Offset: 42})
		require.Error(t, err)
	})
}
