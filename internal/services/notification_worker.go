package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/internal/models"
	"medibook/internal/utils"
	"medibook/pkg/logger"
)

// NotificationSender hands a notification to a delivery channel and
// returns the channel's message id.
type NotificationSender interface {
	Deliver(ctx context.Context, notification *models.Notification) (string, error)
}

// LogSender only records the notification. Email and SMS providers plug in
// behind NotificationSender.
type LogSender struct {
	Logger *logger.Logger
}

func (s *LogSender) Deliver(ctx context.Context, notification *models.Notification) (string, error) {
	s.Logger.WithFields(map[string]interface{}{
		"notification_id": notification.ID,
		"category":        notification.Category,
		"recipient_id":    notification.RecipientID.Hex(),
		"email":           utils.MaskEmail(notification.Email),
		"phone":           utils.MaskPhone(notification.Phone),
	}).Info("Notification delivered")
	return notification.ID, nil
}

type WorkerConfig struct {
	PollTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	PromoteBatch int64
}

type NotificationWorker struct {
	queue  NotificationQueue
	sender NotificationSender
	logger *logger.Logger
	config WorkerConfig
	now    clock
}

func NewNotificationWorker(queue NotificationQueue, sender NotificationSender, logger *logger.Logger, config WorkerConfig) *NotificationWorker {
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 30 * time.Second
	}
	if config.PromoteBatch <= 0 {
		config.PromoteBatch = 100
	}
	return &NotificationWorker{
		queue:  queue,
		sender: sender,
		logger: logger,
		config: config,
		now:    systemClock,
	}
}

// Run processes notifications until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.logger.Info("Notification worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("Notification worker stopped")
			return nil
		}
		if _, err := w.ProcessNext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.WithError(err).Error("Notification worker iteration failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext promotes due notifications and delivers at most one. It
// reports whether a notification was handled.
func (w *NotificationWorker) ProcessNext(ctx context.Context) (bool, error) {
	if _, err := w.queue.PromoteDue(ctx, w.now(), w.config.PromoteBatch); err != nil {
		return false, err
	}

	notification, err := w.queue.Dequeue(ctx, w.config.PollTimeout)
	if errors.Is(err, ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := w.logger.WithFields(map[string]interface{}{
		"notification_id": notification.ID,
		"category":        notification.Category,
		"attempt":         notification.Attempts + 1,
	})

	if _, err := w.sender.Deliver(ctx, notification); err != nil {
		notification.Attempts++
		if notification.Attempts >= w.config.MaxAttempts {
			log.WithError(err).Error("Notification dropped after max attempts")
			return true, nil
		}
		notification.SendAt = w.now().Add(time.Duration(notification.Attempts) * w.config.RetryBackoff)
		if requeueErr := w.queue.Enqueue(ctx, notification); requeueErr != nil {
			return true, fmt.Errorf("failed to requeue notification %s: %w", notification.ID, requeueErr)
		}
		log.WithError(err).Warn("Notification delivery failed, retry scheduled")
		return true, nil
	}
	return true, nil
}
