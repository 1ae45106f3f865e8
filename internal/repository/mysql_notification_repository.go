package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

const notificationColumns = `id, content_type, content_id, title, excerpt, body, audience, created_at, sent_at, claimed_by, claimed_at`

type notificationRow struct {
	ID          uuid.UUID      `db:"id"`
	ContentType string         `db:"content_type"`
	ContentID   uuid.NullUUID  `db:"content_id"`
	Title       string         `db:"title"`
	Excerpt     sql.NullString `db:"excerpt"`
	Body        sql.NullString `db:"body"`
	Audience    sql.NullString `db:"audience"`
	CreatedAt   time.Time      `db:"created_at"`
	SentAt      sql.NullTime   `db:"sent_at"`
	ClaimedBy   uuid.NullUUID  `db:"claimed_by"`
	ClaimedAt   sql.NullTime   `db:"claimed_at"`
}

func newNotificationRow(n *models.Notification) notificationRow {
	row := notificationRow{
		ID:          n.ID,
		ContentType: string(n.ContentType),
		Title:       n.Title,
		Excerpt:     sql.NullString{String: n.Excerpt, Valid: n.Excerpt != ""},
		Body:        sql.NullString{String: n.Body, Valid: n.Body != ""},
		Audience:    sql.NullString{String: n.Audience, Valid: n.Audience != ""},
		CreatedAt:   n.CreatedAt,
	}
	if n.ContentID != nil {
		row.ContentID = uuid.NullUUID{UUID: *n.ContentID, Valid: true}
	}
	if n.SentAt != nil {
		row.SentAt = sql.NullTime{Time: *n.SentAt, Valid: true}
	}
	if n.ClaimedBy != nil && n.ClaimedAt != nil {
		row.ClaimedBy = uuid.NullUUID{UUID: *n.ClaimedBy, Valid: true}
		row.ClaimedAt = sql.NullTime{Time: *n.ClaimedAt, Valid: true}
	}
	return row
}

func (r notificationRow) model() *models.Notification {
	n := &models.Notification{
		ID:          r.ID,
		ContentType: models.ContentType(r.ContentType),
		Title:       r.Title,
		Excerpt:     r.Excerpt.String,
		Body:        r.Body.String,
		Audience:    r.Audience.String,
		CreatedAt:   r.CreatedAt,
	}
	if r.ContentID.Valid {
		id := r.ContentID.UUID
		n.ContentID = &id
	}
	if r.SentAt.Valid {
		t := r.SentAt.Time
		n.SentAt = &t
	}
	if r.ClaimedBy.Valid {
		id := r.ClaimedBy.UUID
		n.ClaimedBy = &id
	}
	if r.ClaimedAt.Valid {
		t := r.ClaimedAt.Time
		n.ClaimedAt = &t
	}
	return n
}

type MySQLNotificationRepository struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewMySQLNotificationRepository(db *sqlx.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{
		db:     db,
		tracer: otel.Tracer("mysql.repository"),
	}
}

func (r *MySQLNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	ctx, span := r.tracer.Start(ctx, "notification.repository.create",
		trace.WithAttributes(
			attribute.String("notification.id", notification.ID.String()),
			attribute.String("notification.content_type", string(notification.ContentType)),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO content_notifications (`+notificationColumns+`)
		 VALUES (:id, :content_type, :content_id, :title, :excerpt, :body, :audience, :created_at, :sent_at, :claimed_by, :claimed_at)`,
		newNotificationRow(notification))
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to insert notification")
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *MySQLNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	ctx, span := r.tracer.Start(ctx, "notification.repository.get_by_id",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	var row notificationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM content_notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification with ID %s: %w", id, models.ErrNotificationNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to select notification")
	}
	return row.model(), nil
}

func (r *MySQLNotificationRepository) FindPending(ctx context.Context) ([]*models.Notification, error) {
	ctx, span := r.tracer.Start(ctx, "notification.repository.find_pending",
		trace.WithAttributes(
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	return r.selectMany(ctx, span,
		`SELECT `+notificationColumns+` FROM content_notifications WHERE sent_at IS NULL ORDER BY created_at ASC`)
}

func (r *MySQLNotificationRepository) FindSent(ctx context.Context, limit int) ([]*models.Notification, error) {
	ctx, span := r.tracer.Start(ctx, "notification.repository.find_sent",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	return r.selectMany(ctx, span,
		`SELECT `+notificationColumns+` FROM content_notifications WHERE sent_at IS NOT NULL ORDER BY sent_at DESC LIMIT ?`, limit)
}

func (r *MySQLNotificationRepository) selectMany(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]*models.Notification, error) {
	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to select notifications")
	}

	notifications := make([]*models.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, row.model())
	}
	span.SetAttributes(attribute.Int("notification.count", len(notifications)))
	return notifications, nil
}

func (r *MySQLNotificationRepository) CountByState(ctx context.Context) (int, int, error) {
	var counts struct {
		Pending int `db:"pending"`
		Sent    int `db:"sent"`
	}
	err := r.db.GetContext(ctx, &counts,
		`SELECT COALESCE(SUM(sent_at IS NULL), 0) AS pending, COALESCE(SUM(sent_at IS NOT NULL), 0) AS sent
		 FROM content_notifications`)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count notifications")
	}
	return counts.Pending, counts.Sent, nil
}

func (r *MySQLNotificationRepository) Claim(ctx context.Context, id, runID uuid.UUID, now time.Time, ttl time.Duration) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "notification.repository.claim",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("dispatch.run_id", runID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	res, err := r.db.ExecContext(ctx,
		`UPDATE content_notifications SET claimed_by = ?, claimed_at = ?
		 WHERE id = ? AND sent_at IS NULL
		   AND (claimed_by IS NULL OR claimed_by = ? OR claimed_at <= ?)`,
		runID, now, id, runID, now.Add(-ttl))
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "failed to claim notification")
	}
	claimed, err := affectedOne(res)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("claimed", claimed))
	return claimed, nil
}

func (r *MySQLNotificationRepository) Release(ctx context.Context, id, runID uuid.UUID) error {
	ctx, span := r.tracer.Start(ctx, "notification.repository.release",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("dispatch.run_id", runID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	_, err := r.db.ExecContext(ctx,
		`UPDATE content_notifications SET claimed_by = NULL, claimed_at = NULL WHERE id = ? AND claimed_by = ?`,
		id, runID)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to release notification")
	}
	return nil
}

func (r *MySQLNotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "notification.repository.mark_sent",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	res, err := r.db.ExecContext(ctx,
		`UPDATE content_notifications SET sent_at = ?, claimed_by = NULL, claimed_at = NULL
		 WHERE id = ? AND sent_at IS NULL`,
		at, id)
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "failed to mark notification as sent")
	}
	updated, err := affectedOne(res)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("updated", updated))
	return updated, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n == 1, nil
}
