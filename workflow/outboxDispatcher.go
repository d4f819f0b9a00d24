package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxDispatcher polls the posting outbox and publishes committed records
// to Pub/Sub. Claims use a short lease so a crashed dispatcher's rows expire
// and get retried; poison records go to DEAD after max attempts.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 500 * time.Millisecond,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) {
	if d.DB == nil {
		return
	}

	claimed, err := models.ClaimPendingOutboxRecords(ctx, d.DB, d.DispatcherID, d.BatchSize)
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "dispatchOnce", "ClaimPendingOutboxRecords", nil, err)
		return
	}

	for _, rec := range claimed {
		msg := models.ConvertToPubSubMessage(rec)
		pubID, pubErr := config.PublishPostingWorkflowWithResult(ctx, msg)
		if pubErr != nil {
			_ = models.MarkOutboxPublishFailed(d.DB.WithContext(ctx), &rec, pubErr)
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"field":       "OutboxDispatcher",
					"business_id": rec.BusinessId,
					"record_id":   rec.ID,
					"attempt":     rec.PublishAttempts + 1,
				}).Error("outbox publish failed: " + pubErr.Error())
			}
			continue
		}
		_ = models.MarkOutboxPublished(d.DB.WithContext(ctx), rec.ID, pubID)
	}
}
