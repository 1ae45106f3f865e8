package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

const mysqlErrDuplicateEntry = 1062

const subscriberColumns = `id, email, pref_articles, pref_recipes, pref_recommendations, subscribed_at, updated_at`

type subscriberRow struct {
	ID                  uuid.UUID `db:"id"`
	Email               string    `db:"email"`
	PrefArticles        bool      `db:"pref_articles"`
	PrefRecipes         bool      `db:"pref_recipes"`
	PrefRecommendations bool      `db:"pref_recommendations"`
	SubscribedAt        time.Time `db:"subscribed_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func newSubscriberRow(s *models.Subscriber) subscriberRow {
	return subscriberRow{
		ID:                  s.ID,
		Email:               s.Email,
		PrefArticles:        s.Preferences.Articles,
		PrefRecipes:         s.Preferences.Recipes,
		PrefRecommendations: s.Preferences.Recommendations,
		SubscribedAt:        s.SubscribedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func (r subscriberRow) model() *models.Subscriber {
	return &models.Subscriber{
		ID:    r.ID,
		Email: r.Email,
		Preferences: models.Preferences{
			Articles:        r.PrefArticles,
			Recipes:         r.PrefRecipes,
			Recommendations: r.PrefRecommendations,
		},
		SubscribedAt: r.SubscribedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

var preferenceColumns = map[models.PreferenceKey]string{
	models.PreferenceArticles:        "pref_articles",
	models.PreferenceRecipes:         "pref_recipes",
	models.PreferenceRecommendations: "pref_recommendations",
}

type MySQLSubscriberRepository struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewMySQLSubscriberRepository(db *sqlx.DB) *MySQLSubscriberRepository {
	return &MySQLSubscriberRepository{
		db:     db,
		tracer: otel.Tracer("mysql.repository"),
	}
}

func (r *MySQLSubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.create",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO newsletter_subscribers (`+subscriberColumns+`)
		 VALUES (:id, :email, :pref_articles, :pref_recipes, :pref_recommendations, :subscribed_at, :updated_at)`,
		newSubscriberRow(subscriber))
	if err != nil {
		span.RecordError(err)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return fmt.Errorf("subscriber %s: %w", subscriber.Email, models.ErrSubscriberExists)
		}
		return errors.Wrap(err, "failed to insert subscriber")
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *MySQLSubscriberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.get_by_id",
		trace.WithAttributes(
			attribute.String("subscriber.id", id.String()),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	var row subscriberRow
	err := r.db.GetContext(ctx, &row, `SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to select subscriber by id")
	}
	return row.model(), nil
}

func (r *MySQLSubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.get_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	var row subscriberRow
	err := r.db.GetContext(ctx, &row, `SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to select subscriber by email")
	}
	span.SetAttributes(attribute.Bool("found", true))
	return row.model(), nil
}

func (r *MySQLSubscriberRepository) GetAll(ctx context.Context) ([]*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.get_all",
		trace.WithAttributes(
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	return r.selectMany(ctx, span, `SELECT `+subscriberColumns+` FROM newsletter_subscribers ORDER BY subscribed_at DESC`)
}

func (r *MySQLSubscriberRepository) FindByPreference(ctx context.Context, key models.PreferenceKey) ([]*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.find_by_preference",
		trace.WithAttributes(
			attribute.String("subscriber.preference", string(key)),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	column, ok := preferenceColumns[key]
	if !ok {
		err := fmt.Errorf("unknown preference %q", key)
		span.RecordError(err)
		return nil, err
	}
	return r.selectMany(ctx, span,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE `+column+` = TRUE ORDER BY subscribed_at`)
}

func (r *MySQLSubscriberRepository) selectMany(ctx context.Context, span trace.Span, query string, args ...interface{}) ([]*models.Subscriber, error) {
	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to select subscribers")
	}

	subscribers := make([]*models.Subscriber, 0, len(rows))
	for _, row := range rows {
		subscribers = append(subscribers, row.model())
	}
	span.SetAttributes(attribute.Int("subscriber.count", len(subscribers)))
	return subscribers, nil
}

func (r *MySQLSubscriberRepository) Update(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.update",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	res, err := r.db.NamedExecContext(ctx,
		`UPDATE newsletter_subscribers
		 SET email = :email, pref_articles = :pref_articles, pref_recipes = :pref_recipes,
		     pref_recommendations = :pref_recommendations, updated_at = :updated_at
		 WHERE id = :id`,
		newSubscriberRow(subscriber))
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to update subscriber")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero for matched-but-unchanged rows, so confirm existence.
		if _, err := r.GetByID(ctx, subscriber.ID); err != nil {
			return err
		}
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *MySQLSubscriberRepository) DeleteByEmail(ctx context.Context, email string) error {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.delete",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	res, err := r.db.ExecContext(ctx, `DELETE FROM newsletter_subscribers WHERE email = ?`, email)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to delete subscriber")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return models.ErrSubscriberNotFound
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *MySQLSubscriberRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM newsletter_subscribers`); err != nil {
		return 0, errors.Wrap(err, "failed to count subscribers")
	}
	return count, nil
}
