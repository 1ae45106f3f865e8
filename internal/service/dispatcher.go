package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/mail"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

const (
	msgNoAudience    = "No subscribers for this content type"
	msgAlreadySent   = "already sent"
	msgSentElsewhere = "marked sent by another dispatch run"
)

// MailSettingsSource supplies the mail settings for a run.
type MailSettingsSource interface {
	MailSettings(ctx context.Context) (models.MailSettings, error)
}

type DispatcherDeps struct {
	Notifications repository.NotificationRepository
	Audience      *AudienceResolver
	Content       *ContentResolver
	Composer      *Composer
	Settings      MailSettingsSource
	Transports    mail.TransportFactory
	Metrics       *telemetry.Metrics
	Logger        *logging.ContextLogger
	SiteName      string
	ClaimTTL      time.Duration
}

// Dispatcher turns pending notifications into emails. Each run claims the
// notifications it works on, so overlapping runs never send the same one.
type Dispatcher struct {
	notifications repository.NotificationRepository
	audience      *AudienceResolver
	content       *ContentResolver
	composer      *Composer
	settings      MailSettingsSource
	transports    mail.TransportFactory
	metrics       *telemetry.Metrics
	logger        *logging.ContextLogger
	tracer        trace.Tracer
	siteName      string
	claimTTL      time.Duration
	now           func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		notifications: deps.Notifications,
		audience:      deps.Audience,
		content:       deps.Content,
		composer:      deps.Composer,
		settings:      deps.Settings,
		transports:    deps.Transports,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		tracer:        otel.Tracer("dispatcher"),
		siteName:      deps.SiteName,
		claimTTL:      deps.ClaimTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// dispatchRun is the state shared by all notifications of one run. When
// setupErr is set no mail can be sent in this run.
type dispatchRun struct {
	id        uuid.UUID
	from      string
	transport mail.Transport
	setupErr  error
}

// DispatchPending processes every pending notification concurrently and
// returns one result per notification, oldest first. An empty slice means
// nothing was pending. Only a failure to list pending notifications is
// returned as an error.
func (d *Dispatcher) DispatchPending(ctx context.Context) ([]models.DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.pending")
	defer span.End()

	started := time.Now()
	pending, err := d.notifications.FindPending(ctx)
	if err != nil {
		d.logger.ErrorWithTracing(ctx, "Failed to load pending notifications", err, nil)
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load pending notifications: %w", err)
	}

	span.SetAttributes(attribute.Int("notification.count", len(pending)))
	if len(pending) == 0 {
		d.logger.InfoWithTracing(ctx, "No pending notifications", nil)
		return []models.DispatchResult{}, nil
	}

	run := d.startRun(ctx)
	span.SetAttributes(attribute.String("dispatch.run_id", run.id.String()))
	d.logger.InfoWithTracing(ctx, "Starting dispatch run", logrus.Fields{
		"run_id":  run.id.String(),
		"pending": len(pending),
	})

	results := make([]models.DispatchResult, len(pending))
	var g errgroup.Group
	for i, n := range pending {
		g.Go(func() error {
			results[i] = d.process(ctx, run, n)
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.RunFinished(time.Since(started))
	d.logger.InfoWithTracing(ctx, "Dispatch run finished", logrus.Fields{
		"run_id":      run.id.String(),
		"processed":   len(results),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return results, nil
}

// DispatchOne runs the pipeline for a single notification.
func (d *Dispatcher) DispatchOne(ctx context.Context, id uuid.UUID) (models.DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.one",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
		))
	defer span.End()

	n, err := d.notifications.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return models.DispatchResult{}, err
	}
	if !n.IsPending() {
		return d.finish(ctx, skipped(n.ID, msgAlreadySent)), nil
	}

	started := time.Now()
	result := d.process(ctx, d.startRun(ctx), n)
	d.metrics.RunFinished(time.Since(started))
	return result, nil
}

func (d *Dispatcher) startRun(ctx context.Context) *dispatchRun {
	run := &dispatchRun{id: uuid.New()}

	settings, err := d.settings.MailSettings(ctx)
	if err != nil {
		run.setupErr = fmt.Errorf("mail settings unavailable: %w", err)
		d.logger.WarnWithTracing(ctx, "Dispatch run has no usable mail settings", logrus.Fields{
			"run_id": run.id.String(),
			"error":  err.Error(),
		})
		return run
	}
	if settings.FromEmail == "" {
		run.setupErr = fmt.Errorf("%w: sender address is empty", models.ErrMailNotConfigured)
		return run
	}

	transport, err := d.transports(settings)
	if err != nil {
		run.setupErr = fmt.Errorf("failed to create mail transport: %w", err)
		d.logger.ErrorWithTracing(ctx, "Failed to create mail transport", err, logrus.Fields{
			"run_id": run.id.String(),
		})
		return run
	}

	run.transport = transport
	run.from = (&netmail.Address{Name: d.siteName, Address: settings.FromEmail}).String()
	return run
}

func (d *Dispatcher) process(ctx context.Context, run *dispatchRun, n *models.Notification) models.DispatchResult {
	ctx, span := d.tracer.Start(ctx, "dispatch.notification",
		trace.WithAttributes(
			attribute.String("notification.id", n.ID.String()),
			attribute.String("notification.content_type", string(n.ContentType)),
			attribute.String("dispatch.run_id", run.id.String()),
		))
	defer span.End()

	claimed, err := d.notifications.Claim(ctx, n.ID, run.id, d.now(), d.claimTTL)
	if err != nil {
		span.RecordError(err)
		return d.finish(ctx, failed(n.ID, err))
	}
	if !claimed {
		return d.finish(ctx, skipped(n.ID, models.ErrAlreadyClaimed.Error()))
	}

	recipients, err := d.audience.ForNotification(ctx, n)
	if err != nil {
		span.RecordError(err)
		return d.abort(ctx, run, n, err)
	}

	if len(recipients) == 0 {
		if _, err := d.notifications.MarkSent(ctx, n.ID, d.now()); err != nil {
			span.RecordError(err)
			return d.abort(ctx, run, n, err)
		}
		return d.finish(ctx, skipped(n.ID, msgNoAudience))
	}

	var content *models.ContentItem
	if !n.ContentType.IsCustom() {
		if n.ContentID == nil {
			return d.abort(ctx, run, n, fmt.Errorf("%w: notification has no content id", models.ErrContentNotFound))
		}
		content, err = d.content.Resolve(ctx, n.ContentType, *n.ContentID)
		if err != nil {
			span.RecordError(err)
			return d.abort(ctx, run, n, err)
		}
	}

	if run.setupErr != nil {
		return d.abort(ctx, run, n, run.setupErr)
	}

	failedCount, lastErr := d.deliver(ctx, run, n, content, recipients)
	d.metrics.EmailsAttempted(len(recipients)-failedCount, failedCount)
	if failedCount == len(recipients) {
		// Nothing went out: treat it as a transport failure and keep the
		// notification pending for the next run.
		span.RecordError(lastErr)
		return d.abort(ctx, run, n, fmt.Errorf("all %d deliveries failed: %w", failedCount, lastErr))
	}

	updated, err := d.notifications.MarkSent(ctx, n.ID, d.now())
	if err != nil {
		// Emails are out but the state did not change; the next run will
		// send this notification again.
		span.RecordError(err)
		return d.abort(ctx, run, n, fmt.Errorf("emails attempted but marking sent failed: %w", err))
	}

	result := models.DispatchResult{
		NotificationID: n.ID,
		Status:         models.DispatchSent,
		RecipientCount: len(recipients),
		FailedCount:    failedCount,
	}
	if !updated {
		result.Message = msgSentElsewhere
	}
	span.SetAttributes(
		attribute.Int("recipient.count", len(recipients)),
		attribute.Int("recipient.failed", failedCount),
	)
	return d.finish(ctx, result)
}

// deliver sends one email per recipient concurrently and returns how many
// failed along with the last failure. A failure never stops the other sends.
func (d *Dispatcher) deliver(ctx context.Context, run *dispatchRun, n *models.Notification, content *models.ContentItem, recipients []*models.Subscriber) (int, error) {
	outcomes := make([]error, len(recipients))
	var g errgroup.Group
	for i, sub := range recipients {
		g.Go(func() error {
			outcomes[i] = d.sendTo(ctx, run, n, content, sub.Email)
			return nil
		})
	}
	_ = g.Wait()

	failedCount := 0
	var lastErr error
	for i, err := range outcomes {
		if err == nil {
			continue
		}
		failedCount++
		lastErr = err
		d.logger.WarnWithTracing(ctx, "Failed to send notification email", logrus.Fields{
			"notification_id": n.ID.String(),
			"recipient":       recipients[i].Email,
			"error":           err.Error(),
		})
	}
	return failedCount, lastErr
}

func (d *Dispatcher) sendTo(ctx context.Context, run *dispatchRun, n *models.Notification, content *models.ContentItem, recipient string) error {
	email, err := d.composer.Compose(n, content, recipient)
	if err != nil {
		return err
	}
	return run.transport.Send(ctx, mail.Message{
		From:    run.from,
		To:      recipient,
		Subject: email.Subject,
		HTML:    email.HTML,
	})
}

// abort reports err for n and gives up this run's claim so the next run
// can retry.
func (d *Dispatcher) abort(ctx context.Context, run *dispatchRun, n *models.Notification, err error) models.DispatchResult {
	if relErr := d.notifications.Release(ctx, n.ID, run.id); relErr != nil {
		d.logger.WarnWithTracing(ctx, "Failed to release notification claim", logrus.Fields{
			"notification_id": n.ID.String(),
			"error":           relErr.Error(),
		})
	}
	return d.finish(ctx, failed(n.ID, err))
}

func (d *Dispatcher) finish(ctx context.Context, result models.DispatchResult) models.DispatchResult {
	d.metrics.NotificationProcessed(string(result.Status))

	fields := logrus.Fields{
		"notification_id": result.NotificationID.String(),
		"status":          string(result.Status),
	}
	switch result.Status {
	case models.DispatchError:
		d.logger.ErrorWithTracing(ctx, "Notification dispatch failed", errors.New(result.Error), fields)
	case models.DispatchSkipped:
		fields["reason"] = result.Message
		d.logger.InfoWithTracing(ctx, "Notification skipped", fields)
	default:
		fields["recipients"] = result.RecipientCount
		fields["failed"] = result.FailedCount
		d.logger.InfoWithTracing(ctx, "Notification sent", fields)
	}
	return result
}

func skipped(id uuid.UUID, message string) models.DispatchResult {
	return models.DispatchResult{NotificationID: id, Status: models.DispatchSkipped, Message: message}
}

func failed(id uuid.UUID, err error) models.DispatchResult {
	return models.DispatchResult{NotificationID: id, Status: models.DispatchError, Error: err.Error()}
}
