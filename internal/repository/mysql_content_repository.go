package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

type MySQLContentRepository struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewMySQLContentRepository(db *sqlx.DB) *MySQLContentRepository {
	return &MySQLContentRepository{
		db:     db,
		tracer: otel.Tracer("mysql.repository"),
	}
}

// FindContent reads from the store the content type routes to. Table and
// column names come from the fixed routing table, never from input.
func (r *MySQLContentRepository) FindContent(ctx context.Context, contentType models.ContentType, id uuid.UUID) (*models.ContentItem, error) {
	route, ok := contentType.Route()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no content store", models.ErrInvalidContentType, contentType)
	}

	ctx, span := r.tracer.Start(ctx, "content.repository.find",
		trace.WithAttributes(
			attribute.String("content.type", string(contentType)),
			attribute.String("content.id", id.String()),
			attribute.String("content.table", route.Table),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	var row struct {
		ID      uuid.UUID `db:"id"`
		Slug    string    `db:"slug"`
		Title   string    `db:"title"`
		Summary string    `db:"summary"`
	}
	query := fmt.Sprintf(`SELECT id, slug, title, %s AS summary FROM %s WHERE id = ?`, route.SummaryColumn, route.Table)
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("%s %s: %w", route.Table, id, models.ErrContentNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "failed to select from %s", route.Table)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &models.ContentItem{
		ID:      row.ID,
		Type:    contentType,
		Slug:    row.Slug,
		Title:   row.Title,
		Excerpt: row.Summary,
	}, nil
}
