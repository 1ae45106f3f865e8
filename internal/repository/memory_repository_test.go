package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/models"
)

func TestInMemorySubscriberRepository(t *testing.T) {
	repo := NewInMemorySubscriberRepository()
	ctx := context.Background()

	first := models.NewSubscriber("a@example.com", models.Preferences{Articles: true})
	require.NoError(t, repo.Create(ctx, first))
	time.Sleep(time.Millisecond)
	second := models.NewSubscriber("b@example.com", models.Preferences{Articles: true, Recipes: true})
	require.NoError(t, repo.Create(ctx, second))

	err := repo.Create(ctx, models.NewSubscriber("a@example.com", models.DefaultPreferences()))
	assert.ErrorIs(t, err, models.ErrSubscriberExists)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	articles, err := repo.FindByPreference(ctx, models.PreferenceArticles)
	require.NoError(t, err)
	assert.Len(t, articles, 2)
	recipes, err := repo.FindByPreference(ctx, models.PreferenceRecipes)
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	assert.Equal(t, "b@example.com", recipes[0].Email)

	// Returned values are copies.
	recipes[0].Preferences.Recipes = false
	again, err := repo.GetByEmail(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, again.Preferences.Recipes)

	require.NoError(t, repo.DeleteByEmail(ctx, "a@example.com"))
	assert.ErrorIs(t, repo.DeleteByEmail(ctx, "a@example.com"), models.ErrSubscriberNotFound)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInMemoryNotificationClaim(t *testing.T) {
	repo := NewInMemoryNotificationRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	ttl := 10 * time.Minute

	n := models.NewNotification(models.ContentArticle, uuid.New(), "T", "")
	require.NoError(t, repo.Create(ctx, n))

	runA, runB := uuid.New(), uuid.New()

	ok, err := repo.Claim(ctx, n.ID, runA, now, ttl)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, n.ID, runB, now.Add(time.Minute), ttl)
	require.NoError(t, err)
	assert.False(t, ok, "live claim blocks other runs")

	ok, err = repo.Claim(ctx, n.ID, runA, now.Add(time.Minute), ttl)
	require.NoError(t, err)
	assert.True(t, ok, "a run may renew its own claim")

	ok, err = repo.Claim(ctx, n.ID, runB, now.Add(time.Hour), ttl)
	require.NoError(t, err)
	assert.True(t, ok, "expired claims can be taken over")

	require.NoError(t, repo.Release(ctx, n.ID, runA), "releasing someone else's claim is a no-op")
	stored, err := repo.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClaimedBy)
	assert.Equal(t, runB, *stored.ClaimedBy)

	ok, err = repo.Claim(ctx, uuid.New(), runA, now, ttl)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryNotificationMarkSentIsConditional(t *testing.T) {
	repo := NewInMemoryNotificationRepository()
	ctx := context.Background()

	n := models.NewNotification(models.ContentRecipe, uuid.New(), "T", "")
	require.NoError(t, repo.Create(ctx, n))

	first := time.Now().UTC()
	updated, err := repo.MarkSent(ctx, n.ID, first)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkSent(ctx, n.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, updated)

	stored, err := repo.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.SentAt.Equal(first), "sent_at is written once")

	ok, err := repo.Claim(ctx, n.ID, uuid.New(), time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "sent notifications cannot be claimed")

	pending, sent, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, sent)
}

func TestInMemoryNotificationOrdering(t *testing.T) {
	repo := NewInMemoryNotificationRepository()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n := models.NewNotification(models.ContentArticle, uuid.New(), "T", "")
		require.NoError(t, repo.Create(ctx, n))
		ids = append(ids, n.ID)
		time.Sleep(time.Millisecond)
	}

	pending, err := repo.FindPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, n := range pending {
		assert.Equal(t, ids[i], n.ID)
	}

	base := time.Now().UTC()
	_, err = repo.MarkSent(ctx, ids[0], base)
	require.NoError(t, err)
	_, err = repo.MarkSent(ctx, ids[1], base.Add(time.Second))
	require.NoError(t, err)

	sent, err := repo.FindSent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, ids[1], sent[0].ID)
}

func TestInMemoryContentRepository(t *testing.T) {
	repo := NewInMemoryContentRepository()
	ctx := context.Background()

	item := models.ContentItem{ID: uuid.New(), Type: models.ContentRecipe, Slug: "soup", Title: "Soup"}
	require.NoError(t, repo.Put(item))

	found, err := repo.FindContent(ctx, models.ContentRecipe, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "soup", found.Slug)

	_, err = repo.FindContent(ctx, models.ContentArticle, item.ID)
	assert.ErrorIs(t, err, models.ErrContentNotFound, "each content type has its own store")

	_, err = repo.FindContent(ctx, models.ContentCustom, item.ID)
	assert.ErrorIs(t, err, models.ErrInvalidContentType)

	assert.ErrorIs(t, repo.Put(models.ContentItem{ID: uuid.New(), Type: models.ContentCustom}), models.ErrInvalidContentType)
}
