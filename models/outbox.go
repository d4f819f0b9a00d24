package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox publish statuses for PostingOutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const outboxMaxPublishAttempts = 10

// PostingOutboxRecord is the transactional-outbox row for posting workflow
// messages. It is written in the same DB transaction as the document status
// change; the dispatcher publishes it to Pub/Sub after commit.
type PostingOutboxRecord struct {
	ID                  int                  `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId          string               `gorm:"size:64;not null;index" json:"business_id"`
	TransactionDateTime time.Time            `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                  `json:"reference_id"`
	ReferenceType       AccountReferenceType `gorm:"type:enum('IV','BL','IVP','BLP')" json:"reference_type"`
	Action              PubSubMessageAction  `gorm:"type:enum('C','D')" json:"action"`
	OldObj              []byte               `gorm:"type:blob" json:"old_obj"`
	NewObj              []byte               `gorm:"type:blob" json:"new_obj"`
	IsProcessed         bool                 `gorm:"index;not null" json:"is_processed"`
	PublishStatus       string               `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt         *time.Time           `gorm:"index" json:"published_at"`
	PubSubMessageId     *string              `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts     int                  `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt       *time.Time           `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt            *time.Time           `gorm:"index" json:"locked_at"`
	LockedBy            *string              `gorm:"size:100" json:"locked_by"`
	LastPublishError    *string              `gorm:"type:text" json:"last_publish_error"`
	LastProcessError    *string              `gorm:"type:text" json:"last_process_error"`
	ProcessedAt         *time.Time           `gorm:"index" json:"processed_at"`
	CorrelationId       string               `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record PostingOutboxRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		BusinessId:          record.BusinessId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              string(record.Action),
		OldObj:              record.OldObj,
		NewObj:              record.NewObj,
		CorrelationId:       record.CorrelationId,
	}
}

// PublishToPosting writes the outbox record inside the caller's DB
// transaction but does NOT publish to Pub/Sub. Publishing happens
// asynchronously after commit.
func PublishToPosting(ctx context.Context, db *gorm.DB, businessId string, transactionDateTime time.Time, refId int, refType AccountReferenceType, obj interface{}, oldObj interface{}, msgAction PubSubMessageAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if msgAction == PubSubMessageActionCreate {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if msgAction == PubSubMessageActionDelete {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := PostingOutboxRecord{
		BusinessId:          businessId,
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              msgAction,
		NewObj:              objInByte,
		OldObj:              oldObjInByte,
		IsProcessed:         false,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return db.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// MarkOutboxProcessed flips the worker-side flag inside the worker's tx.
func MarkOutboxProcessed(tx *gorm.DB, recordId int) error {
	now := time.Now()
	return tx.Model(&PostingOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"is_processed": true,
			"processed_at": &now,
		}).Error
}

// MarkOutboxProcessFailed records the handler error without touching the
// publish state. The record stays visible for reprocessing.
func MarkOutboxProcessFailed(db *gorm.DB, recordId int, processErr error) error {
	msg := processErr.Error()
	return db.Model(&PostingOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"last_process_error": &msg,
		}).Error
}

// ClaimPendingOutboxRecords locks up to limit records due for publishing.
// Uses a short lease (locked_at/locked_by) so a crashed dispatcher's claims
// expire and get retried.
func ClaimPendingOutboxRecords(ctx context.Context, db *gorm.DB, workerId string, limit int) ([]PostingOutboxRecord, error) {
	now := time.Now()
	staleBefore := now.Add(-5 * time.Minute)

	var claimed []PostingOutboxRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int
		if err := tx.Model(&PostingOutboxRecord{}).
			Where("publish_status IN ?", []string{OutboxPublishStatusPending, OutboxPublishStatusFailed}).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Where("locked_at IS NULL OR locked_at < ?", staleBefore).
			Order("id").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(&PostingOutboxRecord{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"publish_status": OutboxPublishStatusProcessing,
				"locked_at":      &now,
				"locked_by":      &workerId,
			}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkOutboxPublished records a successful publish.
func MarkOutboxPublished(db *gorm.DB, recordId int, pubSubMessageId string) error {
	now := time.Now()
	return db.Model(&PostingOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"publish_status":    OutboxPublishStatusSent,
			"published_at":      &now,
			"pubsub_message_id": &pubSubMessageId,
			"locked_at":         nil,
			"locked_by":         nil,
		}).Error
}

// MarkOutboxPublishFailed bumps the attempt counter with exponential backoff,
// moving the record to DEAD once attempts are exhausted.
func MarkOutboxPublishFailed(db *gorm.DB, record *PostingOutboxRecord, publishErr error) error {
	attempts := record.PublishAttempts + 1
	status := OutboxPublishStatusFailed
	if attempts >= outboxMaxPublishAttempts {
		status = OutboxPublishStatusDead
	}
	backoff := time.Duration(1<<uint(min(attempts, 8))) * time.Second
	nextAttempt := time.Now().Add(backoff)
	msg := publishErr.Error()

	return db.Model(&PostingOutboxRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"publish_attempts":   attempts,
			"next_attempt_at":    &nextAttempt,
			"last_publish_error": &msg,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
}

// ReprocessDeadOutboxRecord puts a DEAD record back in the queue. Admin use.
func ReprocessDeadOutboxRecord(ctx context.Context, db *gorm.DB, recordId int) error {
	return db.WithContext(ctx).Model(&PostingOutboxRecord{}).
		Where("id = ? AND publish_status = ?", recordId, OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
		}).Error
}
