package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"bitbucket.org/mmdatafocus/billing_backend/workflow"
	"github.com/sirupsen/logrus"
)

var (
	businessMutexMap = make(map[string]*sync.Mutex)
	globalMutex      = &sync.Mutex{}
)

// RunPostingWorkflow subscribes to the posting topic and applies messages to
// the ledger. Messages for the same business are serialized in-process; the
// DB advisory lock inside ProcessMessage serializes across instances.
func RunPostingWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "postingWorkflow.go", "RunPostingWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			return
		}

		globalMutex.Lock()
		mutex, exists := businessMutexMap[m.BusinessId]
		if !exists {
			mutex = &sync.Mutex{}
			businessMutexMap[m.BusinessId] = mutex
		}
		globalMutex.Unlock()

		mutex.Lock()
		defer mutex.Unlock()

		procCtx := utils.SetBusinessIdInContext(ctx, m.BusinessId)
		procCtx = utils.SetUserIdInContext(procCtx, 0)
		procCtx = utils.SetUsernameInContext(procCtx, "System")
		procCtx = utils.SetCorrelationIdInContext(procCtx, m.CorrelationId)
		if err := workflow.ProcessMessage(procCtx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "PostingWorkflow",
				"business_id":    m.BusinessId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "postingWorkflow.go", "RunPostingWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}
