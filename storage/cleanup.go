package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

type cleanupMessage struct {
	ProjectID string `json:"projectId"`
}

// CleanupWorker drains the cleanup queue and deletes the cards of removed
// projects. A message whose cards could not be deleted is left on the queue
// and becomes visible again after its visibility timeout.
type CleanupWorker struct {
	queue  queueClient
	store  *Storage
	logger *log.Logger
	idle   time.Duration
}

// NewCleanupWorker returns a worker reading the queue of s.
func (s *Storage) NewCleanupWorker(logger *log.Logger) *CleanupWorker {
	return &CleanupWorker{queue: s.cleanupQueue, store: s, logger: logger, idle: time.Second}
}

// Run processes messages until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	for {
		processed, err := w.processOne(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.WithError(err).Error("cleanup failed")
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.idle):
		}
	}
}

func (w *CleanupWorker) processOne(ctx context.Context) (bool, error) {
	resp, err := w.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return false, err
	}
	if len(resp.Messages) == 0 {
		return false, nil
	}
	msg := resp.Messages[0]
	if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return true, nil
	}
	var m cleanupMessage
	if err := sonic.Unmarshal([]byte(*msg.MessageText), &m); err != nil || m.ProjectID == "" {
		w.logger.WithField("message", *msg.MessageID).Warn("dropping malformed cleanup message")
		_, derr := w.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
		return true, derr
	}
	if err := w.store.DeleteProjectCards(ctx, m.ProjectID); err != nil {
		return true, err
	}
	w.logger.WithField("project", m.ProjectID).Debug("project cards removed")
	_, err = w.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
	return true, err
}
