package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

func boolPtr(b bool) *bool { return &b }

func newSubscriberService() (*SubscriberService, *repository.InMemorySubscriberRepository) {
	repo := repository.NewInMemorySubscriberRepository()
	return NewSubscriberService(repo, logging.NewLoggerWithOutput(io.Discard, "info")), repo
}

func TestSubscribeDefaultsAndMerge(t *testing.T) {
	svc, _ := newSubscriberService()
	ctx := context.Background()

	sub, created, err := svc.Subscribe(ctx, &models.SubscribeRequest{
		Email:       "  reader@example.com ",
		Preferences: &models.PreferencesUpdate{Recommendations: boolPtr(false)},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "reader@example.com", sub.Email)
	assert.Equal(t, models.Preferences{Articles: true, Recipes: true}, sub.Preferences)
}

func TestSubscribeExistingEmailIsNotDuplicated(t *testing.T) {
	svc, repo := newSubscriberService()
	ctx := context.Background()

	first, _, err := svc.Subscribe(ctx, &models.SubscribeRequest{
		Email:       "reader@example.com",
		Preferences: &models.PreferencesUpdate{Recipes: boolPtr(false)},
	})
	require.NoError(t, err)

	again, created, err := svc.Subscribe(ctx, &models.SubscribeRequest{Email: "reader@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.False(t, again.Preferences.Recipes, "no preferences given keeps the stored ones")

	again, created, err = svc.Subscribe(ctx, &models.SubscribeRequest{
		Email:       "reader@example.com",
		Preferences: &models.PreferencesUpdate{Recipes: boolPtr(true)},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, again.Preferences.Recipes)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSubscribeRejectsInvalidEmail(t *testing.T) {
	svc, _ := newSubscriberService()
	_, _, err := svc.Subscribe(context.Background(), &models.SubscribeRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, models.ErrInvalidEmail)
}

func TestUnsubscribe(t *testing.T) {
	svc, repo := newSubscriberService()
	ctx := context.Background()

	_, _, err := svc.Subscribe(ctx, &models.SubscribeRequest{Email: "reader@example.com"})
	require.NoError(t, err)

	result, err := svc.Unsubscribe(ctx, &models.UnsubscribeRequest{
		Email:       "reader@example.com",
		Preferences: &models.PreferencesUpdate{Articles: boolPtr(false)},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Subscriber)
	assert.False(t, result.Removed)
	assert.Equal(t, models.Preferences{Recipes: true, Recommendations: true}, result.Subscriber.Preferences)

	result, err = svc.Unsubscribe(ctx, &models.UnsubscribeRequest{Email: "reader@example.com", All: true})
	require.NoError(t, err)
	assert.True(t, result.Removed)

	_, err = repo.GetByEmail(ctx, "reader@example.com")
	assert.ErrorIs(t, err, models.ErrSubscriberNotFound)

	result, err = svc.Unsubscribe(ctx, &models.UnsubscribeRequest{Email: "reader@example.com"})
	require.NoError(t, err)
	assert.True(t, result.AlreadyUnsubscribed)
}

func TestRemoveUnknownSubscriber(t *testing.T) {
	svc, _ := newSubscriberService()
	err := svc.Remove(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, models.ErrSubscriberNotFound)
}

func TestEmailMatchingIsCaseSensitive(t *testing.T) {
	svc, _ := newSubscriberService()
	ctx := context.Background()

	_, _, err := svc.Subscribe(ctx, &models.SubscribeRequest{Email: "Reader@example.com"})
	require.NoError(t, err)

	_, err = svc.GetByEmail(ctx, "reader@example.com")
	assert.ErrorIs(t, err, models.ErrSubscriberNotFound)
}
