package workflow

import (
	"context"
	"strconv"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessMessage applies one outbox message to the ledger. The whole handler
// runs inside a single DB transaction: the per-business advisory lock, the
// idempotency record, the journal rows and the outbox processed flag all
// commit or roll back together.
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict per-business ordering across instances.
		if err := AcquireBusinessPostingLock(tx.WithContext(ctx), m.BusinessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx.WithContext(ctx), m.BusinessId)

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := BeginIdempotency(tx.WithContext(ctx), m.BusinessId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		// IMPORTANT: do not call tx.Commit()/tx.Rollback() inside db.Transaction.
		// Returning error triggers rollback; returning nil commits.
		if err := ProcessWorkflow(tx.WithContext(ctx), logger, m); err != nil {
			_ = MarkIdempotencyFailed(tx.WithContext(ctx), m.BusinessId, handlerName, messageId, err)
			return err
		}
		return MarkIdempotencySucceeded(tx.WithContext(ctx), m.BusinessId, handlerName, messageId)
	})
}

func ProcessWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.ReferenceType {
	case string(models.AccountReferenceTypeInvoice):
		return ProcessInvoiceWorkflow(tx, logger, msg)
	case string(models.AccountReferenceTypeBill):
		return ProcessBillWorkflow(tx, logger, msg)
	case string(models.AccountReferenceTypeInvoicePayment):
		return ProcessInvoicePaymentWorkflow(tx, logger, msg)
	case string(models.AccountReferenceTypeBillPayment):
		return ProcessBillPaymentWorkflow(tx, logger, msg)
	}
	return nil
}
