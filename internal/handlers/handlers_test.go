package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/cache"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/mail"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/service"
)

type testEnv struct {
	router        *gin.Engine
	subscribers   *repository.InMemorySubscriberRepository
	notifications *repository.InMemoryNotificationRepository
	content       *repository.InMemoryContentRepository
	settings      *service.SettingsService
	transport     *mail.MemoryTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTransports(t, nil)
}

// newTestEnvWithTransports uses transports for dispatch, or the env's memory
// transport when nil.
func newTestEnvWithTransports(t *testing.T, transports mail.TransportFactory) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLoggerWithOutput(io.Discard, "info")
	env := &testEnv{
		subscribers:   repository.NewInMemorySubscriberRepository(),
		notifications: repository.NewInMemoryNotificationRepository(),
		content:       repository.NewInMemoryContentRepository(),
		transport:     mail.NewMemoryTransport(),
	}
	env.settings = service.NewSettingsService(repository.NewInMemorySettingsRepository(),
		cache.NewInMemoryCache[models.MailSettings](), time.Minute, "env-key", logger)

	if transports == nil {
		transports = env.transport.Factory()
	}

	contentResolver := service.NewContentResolver(env.content)
	subscriberService := service.NewSubscriberService(env.subscribers, logger)
	notificationService := service.NewNotificationService(env.notifications, env.subscribers, contentResolver, logger)
	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Notifications: env.notifications,
		Audience:      service.NewAudienceResolver(env.subscribers),
		Content:       contentResolver,
		Composer:      service.NewComposer("https://site.example", "Site"),
		Settings:      env.settings,
		Transports:    transports,
		Logger:        logger,
		SiteName:      "Site",
		ClaimTTL:      time.Minute,
	})

	newsletter := NewNewsletterHandler(subscriberService, logger)
	trigger := NewDispatchHandler(dispatcher, env.settings, logger)
	admin := NewAdminHandler(subscriberService, notificationService, dispatcher, env.settings, logger)

	r := gin.New()
	r.POST("/subscribe", newsletter.Subscribe)
	r.POST("/unsubscribe", newsletter.Unsubscribe)
	r.GET("/preferences", newsletter.Preferences)
	r.POST("/send-notifications", trigger.SendNotifications)
	r.GET("/admin/dashboard", admin.Dashboard)
	r.GET("/admin/subscribers", admin.ListSubscribers)
	r.POST("/admin/unsubscribe", admin.RemoveSubscriber)
	r.GET("/admin/notifications", admin.ListNotifications)
	r.POST("/admin/notifications", admin.CreateNotification)
	r.POST("/admin/send-notification", admin.SendNotification)
	r.POST("/admin/send-custom", admin.SendCustom)
	r.GET("/admin/email-settings", admin.GetEmailSettings)
	r.POST("/admin/email-settings", admin.SaveEmailSettings)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (env *testEnv) saveSettings(t *testing.T) {
	t.Helper()
	require.NoError(t, env.settings.Save(context.Background(), models.MailSettings{
		Host: "smtp.example.com", Port: 587, User: "u", Password: "p",
		FromEmail: "news@site.example", APIKey: "stored-key",
	}))
}

func TestSubscribeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/subscribe", gin.H{
		"email":       "reader@example.com",
		"preferences": gin.H{"recipes": false},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, false, body["preferences"].(map[string]interface{})["recipes"])

	w, body = env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "reader@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["alreadySubscribed"])

	w, _ = env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnsubscribeAndPreferencesEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "reader@example.com"})

	w, body := env.do(t, http.MethodPost, "/unsubscribe", gin.H{
		"email":       "reader@example.com",
		"preferences": gin.H{"articles": false},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Preferences updated", body["message"])

	w, body = env.do(t, http.MethodGet, "/preferences?email=reader%40example.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["preferences"].(map[string]interface{})["articles"])

	w, _ = env.do(t, http.MethodPost, "/unsubscribe", gin.H{"email": "reader@example.com", "all": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/preferences?email=reader%40example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodPost, "/unsubscribe", gin.H{"email": "reader@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["alreadyUnsubscribed"])

	w, _ = env.do(t, http.MethodGet, "/preferences", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendNotificationsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/send-notifications?apiKey=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := env.do(t, http.MethodPost, "/send-notifications?apiKey=env-key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No pending notifications", body["message"])

	env.saveSettings(t)
	w, _ = env.do(t, http.MethodPost, "/send-notifications?apiKey=env-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "stored key replaces the env key")

	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "reader@example.com"})
	item := models.ContentItem{ID: uuid.New(), Type: models.ContentArticle, Slug: "s", Title: "T"}
	require.NoError(t, env.content.Put(item))
	require.NoError(t, env.notifications.Create(context.Background(), models.NewNotification(item.Type, item.ID, "T", "")))

	w, body = env.do(t, http.MethodPost, "/send-notifications?apiKey=stored-key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["processed"])
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "sent", results[0].(map[string]interface{})["status"])
	assert.Equal(t, float64(1), results[0].(map[string]interface{})["recipientCount"])
	assert.Len(t, env.transport.Messages(), 1)
}

// blockingTransport holds every send until release is closed or the send
// context is done.
type blockingTransport struct {
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
	delivered *mail.MemoryTransport
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		started:   make(chan struct{}),
		release:   make(chan struct{}),
		delivered: mail.NewMemoryTransport(),
	}
}

func (b *blockingTransport) Send(ctx context.Context, msg mail.Message) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return b.delivered.Send(ctx, msg)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingTransport) factory() mail.TransportFactory {
	return func(models.MailSettings) (mail.Transport, error) {
		return b, nil
	}
}

func TestSendNotificationsSurvivesClientDisconnect(t *testing.T) {
	blocking := newBlockingTransport()
	env := newTestEnvWithTransports(t, blocking.factory())
	env.saveSettings(t)

	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "reader@example.com"})
	item := models.ContentItem{ID: uuid.New(), Type: models.ContentArticle, Slug: "s", Title: "T"}
	require.NoError(t, env.content.Put(item))
	n := models.NewNotification(item.Type, item.ID, "T", "")
	require.NoError(t, env.notifications.Create(context.Background(), n))

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/send-notifications?apiKey=stored-key", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never reached the transport")
	}
	cancel()
	close(blocking.release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
	}

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"sent"`)
	assert.Len(t, blocking.delivered.MessagesTo("reader@example.com"), 1)

	stored, err := env.notifications.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.SentAt)
}

func TestSendNotificationsStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	logger := logging.NewLoggerWithOutput(io.Discard, "info")
	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Notifications: failingNotifications{env.notifications},
		Audience:      service.NewAudienceResolver(env.subscribers),
		Content:       service.NewContentResolver(env.content),
		Composer:      service.NewComposer("https://site.example", "Site"),
		Settings:      env.settings,
		Transports:    env.transport.Factory(),
		Logger:        logger,
		ClaimTTL:      time.Minute,
	})
	r := gin.New()
	r.POST("/send-notifications", NewDispatchHandler(dispatcher, env.settings, logger).SendNotifications)

	req := httptest.NewRequest(http.MethodPost, "/send-notifications?apiKey=env-key", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "results")
}

func TestAdminNotificationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)
	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "reader@example.com"})

	item := models.ContentItem{ID: uuid.New(), Type: models.ContentRecipe, Slug: "soup", Title: "Soup"}
	require.NoError(t, env.content.Put(item))

	w, _ := env.do(t, http.MethodPost, "/admin/notifications", gin.H{
		"content_type": "recipe", "content_id": uuid.New().String(), "title": "Missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/notifications", gin.H{
		"content_type": "video", "content_id": item.ID.String(), "title": "Soup",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := env.do(t, http.MethodPost, "/admin/notifications", gin.H{
		"content_type": "recipe", "content_id": item.ID.String(), "title": "Soup",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["id"].(string)

	w, body = env.do(t, http.MethodGet, "/admin/notifications", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["pending"].([]interface{}), 1)

	w, body = env.do(t, http.MethodPost, "/admin/send-notification?id="+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, _ = env.do(t, http.MethodPost, "/admin/send-notification?id=not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/send-notification?id="+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/dashboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["totalSubscribers"])
	assert.Equal(t, float64(1), body["sentNotifications"])
	assert.Equal(t, float64(0), body["pendingNotifications"])
}

func TestAdminSendCustom(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)
	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "a@example.com", "preferences": gin.H{"articles": false, "recipes": false, "recommendations": false}})
	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "b@example.com"})

	w, body := env.do(t, http.MethodPost, "/admin/send-custom", gin.H{"title": "Hello", "content": "<p>Hi all</p>"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(2), result["recipientCount"])
	assert.Len(t, env.transport.Messages(), 2)

	w, _ = env.do(t, http.MethodPost, "/admin/send-custom", gin.H{"title": "Hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/send-custom", gin.H{"title": "Hello", "content": "x", "recipients": "vips"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminSubscribers(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/subscribe", gin.H{"email": "a@example.com"})

	w, body := env.do(t, http.MethodGet, "/admin/subscribers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = env.do(t, http.MethodPost, "/admin/unsubscribe", gin.H{"email": "a@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/unsubscribe", gin.H{"email": "a@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEmailSettings(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/admin/email-settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["host"])

	w, _ = env.do(t, http.MethodPost, "/admin/email-settings", gin.H{"host": "smtp.example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/email-settings", gin.H{
		"host": "smtp.example.com", "port": 465, "secure": true, "user": "u",
		"password": "p", "fromEmail": "news@site.example", "apiKey": "k",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/email-settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "smtp.example.com", body["host"])
	assert.Equal(t, models.RedactedPassword, body["password"])
}

type failingNotifications struct {
	repository.NotificationRepository
}

func (failingNotifications) FindPending(context.Context) ([]*models.Notification, error) {
	return nil, assert.AnError
}
