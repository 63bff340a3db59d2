package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

// asAdmin stands in for AuthRequired+AdminRequired.
func asAdmin(c *gin.Context) {
	c.Set(middleware.ContextUserID, uint(1))
	c.Set(middleware.ContextRole, models.RoleAdmin)
	c.Set(middleware.ContextIdentity, services.Authenticated{UserID: 1, Role: models.RoleAdmin})
	c.Next()
}

// asStudent stands in for AuthRequired with a student token.
func asStudent(id uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id)
		c.Set(middleware.ContextRole, models.RoleStudent)
		c.Set(middleware.ContextIdentity, services.Authenticated{UserID: id, Role: models.RoleStudent})
		c.Next()
	}
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

type fixedUpstream struct {
	calls int
}

func (f *fixedUpstream) Complete(context.Context, *services.UpstreamRequest) (json.RawMessage, error) {
	f.calls++
	return json.RawMessage(`{"id":"cmpl-1","object":"chat.completion","choices":[]}`), nil
}

func chatRouter(t *testing.T) (*gin.Engine, *fixedUpstream) {
	db := setupTestDB(t)
	box, err := utils.NewSecretBox("handler-test-secret")
	require.NoError(t, err)
	up := &fixedUpstream{}
	proxy := services.NewChatProxy(
		services.NewModelConfigService(db, nil),
		services.NewCredentialService(db, box, "sk-config"),
		&config.AIConfig{},
		map[string]services.Upstream{models.ProviderOpenAI: up},
	)
	require.NoError(t, db.Create(&models.ModelConfig{ID: "gpt-4o-mini", Name: "mini", Enabled: true}).Error)
	require.NoError(t, db.Create(&models.ModelConfig{ID: "gpt-4o", Name: "full", Enabled: false}).Error)

	r := gin.New()
	h := NewChatProxyHandler(proxy)
	r.POST("/chat-proxy", h.Chat)
	r.POST("/api/ai-chat", h.Chat)
	return r, up
}

func TestChatProxy_DisabledModel(t *testing.T) {
	r, up := chatRouter(t)

	w := doJSON(r, http.MethodPost, "/chat-proxy", gin.H{"modelId": "gpt-4o", "prompt": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")
	assert.Zero(t, up.calls)
}

func TestChatProxy_InvalidJSON(t *testing.T) {
	r, _ := chatRouter(t)

	w := doJSON(r, http.MethodPost, "/api/ai-chat", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, w.Body.String())
}

func TestChatProxy_PassesBodyThrough(t *testing.T) {
	r, up := chatRouter(t)

	w := doJSON(r, http.MethodPost, "/chat-proxy", gin.H{
		"modelId":  "gpt-4o-mini",
		"messages": []gin.H{{"role": "user", "content": "hello"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"cmpl-1","object":"chat.completion","choices":[]}`, w.Body.String())
	assert.Equal(t, 1, up.calls)
}

func crudRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := setupTestDB(t)
	content := services.NewContent(db, services.NewChangeFeed())
	h := NewCRUDHandler(content.Courses, "course",
		[]string{"title", "description", "category", "price", "is_published"},
		[]string{"title"},
	).OnCreate(func(c *gin.Context, row *models.Course) {
		row.CreatedBy = middleware.GetUserIDPtr(c)
	})

	r := gin.New()
	g := r.Group("/api/admin/courses", asAdmin)
	h.Register(g)
	return r, db
}

func TestCRUD_CreateListToggleDelete(t *testing.T) {
	r, db := crudRouter(t)

	w := doJSON(r, http.MethodPost, "/api/admin/courses", gin.H{"title": "Algebra I", "category": "math"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Course
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.NotZero(t, created.ID)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, uint(1), *created.CreatedBy)

	w = doJSON(r, http.MethodGet, "/api/admin/courses?keyword=alg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64           `json:"total"`
		Items []models.Course `json:"items"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	assert.EqualValues(t, 1, page.Total)

	w = doJSON(r, http.MethodPost, "/api/admin/courses/1/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored models.Course
	require.NoError(t, db.First(&stored, created.ID).Error)
	assert.True(t, stored.IsPublished)

	w = doJSON(r, http.MethodDelete, "/api/admin/courses/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"deleted":true}`, string(decode(t, w).Data))
}

func TestCRUD_DeleteMissingIsNotAnError(t *testing.T) {
	r, _ := crudRouter(t)

	w := doJSON(r, http.MethodDelete, "/api/admin/courses/999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":999,"deleted":false}`, string(decode(t, w).Data))
}

func TestCRUD_UpdateRules(t *testing.T) {
	r, db := crudRouter(t)
	require.NoError(t, db.Create(&models.Course{Title: "Physics"}).Error)

	w := doJSON(r, http.MethodPut, "/api/admin/courses/1", gin.H{"created_by": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code, "non-editable columns only")

	w = doJSON(r, http.MethodPut, "/api/admin/courses/1", gin.H{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/api/admin/courses/1", gin.H{"title": "Physics II", "created_by": 42})
	require.Equal(t, http.StatusOK, w.Code)
	var stored models.Course
	require.NoError(t, db.First(&stored, 1).Error)
	assert.Equal(t, "Physics II", stored.Title)
	assert.Nil(t, stored.CreatedBy)

	w = doJSON(r, http.MethodPut, "/api/admin/courses/77", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCRUD_CreateRejectsClientID(t *testing.T) {
	r, _ := crudRouter(t)

	w := doJSON(r, http.MethodPost, "/api/admin/courses", gin.H{"id": 5, "title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/courses", gin.H{"category": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings_PutThenPublicRead(t *testing.T) {
	db := setupTestDB(t)
	feed := services.NewChangeFeed()
	store := services.NewSettingsStore(db, feed)
	public := services.NewSettingsAggregator(store)
	require.NoError(t, public.Load(context.Background()))
	stop := public.Watch(feed, "public-settings")
	defer stop()

	h := NewSettingsHandler(store, public)
	r := gin.New()
	admin := r.Group("/api/admin/settings", asAdmin)
	admin.GET("", h.GetAll)
	admin.PUT("/:key", h.Put)
	admin.POST("/:key/items", h.AddItem)
	admin.PUT("/:key/items/:item", h.UpdateItem)
	admin.DELETE("/:key/items/:item", h.RemoveItem)
	r.GET("/api/settings/:key", h.PublicKey)

	w := doJSON(r, http.MethodPut, "/api/admin/settings/hero", gin.H{"value": gin.H{"headline": "Study smarter"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved services.Setting
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &saved))
	assert.Equal(t, "Study smarter", saved.Value["headline"])
	assert.Equal(t, "Get started", saved.Value["cta_text"], "merge keeps untouched fields")

	assert.Eventually(t, func() bool {
		w := doJSON(r, http.MethodGet, "/api/settings/hero", nil)
		var v map[string]interface{}
		_ = json.Unmarshal(decode(t, w).Data, &v)
		return v["headline"] == "Study smarter"
	}, 2*time.Second, 10*time.Millisecond)

	stale := saved.Revision - 1
	w = doJSON(r, http.MethodPut, "/api/admin/settings/hero", gin.H{"value": gin.H{"headline": "x"}, "revision": stale})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPut, "/api/admin/settings/BadKey", gin.H{"value": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings_ListItems(t *testing.T) {
	db := setupTestDB(t)
	store := services.NewSettingsStore(db, services.NewChangeFeed())
	h := NewSettingsHandler(store, services.NewSettingsAggregator(store))
	r := gin.New()
	admin := r.Group("/api/admin/settings", asAdmin)
	admin.POST("/:key/items", h.AddItem)
	admin.PUT("/:key/items/:item", h.UpdateItem)
	admin.DELETE("/:key/items/:item", h.RemoveItem)

	w := doJSON(r, http.MethodPost, "/api/admin/settings/carousel/items", gin.H{"title": "Welcome"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &item))
	id, _ := item["id"].(string)
	require.NotEmpty(t, id)

	w = doJSON(r, http.MethodPut, "/api/admin/settings/carousel/items/"+id, gin.H{"title": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPut, "/api/admin/settings/carousel/items/nope", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/admin/settings/carousel/items/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"deleted":true`)

	s, err := store.Get(context.Background(), "carousel")
	require.NoError(t, err)
	assert.Empty(t, services.ListItems(s.Value))
}

func TestPublic_ListsFollowFeed(t *testing.T) {
	db := setupTestDB(t)
	feed := services.NewChangeFeed()
	content := services.NewContent(db, feed)
	require.NoError(t, content.Courses.Create(context.Background(), &models.Course{Title: "Draft"}))

	h := NewPublicHandler(content)
	stop, err := h.Start(context.Background(), feed)
	require.NoError(t, err)
	defer stop()

	r := gin.New()
	r.GET("/api/public/courses", h.Courses)

	count := func() int {
		var items []models.Course
		_ = json.Unmarshal(decode(t, doJSON(r, http.MethodGet, "/api/public/courses", nil)).Data, &items)
		return len(items)
	}
	assert.Equal(t, 0, count())

	require.NoError(t, content.Courses.Create(context.Background(), &models.Course{Title: "Live", IsPublished: true}))
	assert.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = content.Courses.Toggle(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	db := setupTestDB(t)
	r := gin.New()
	r.GET("/health", NewHealthHandler(db, services.NewChangeFeed(), nil).CheckHealth)

	w := doJSON(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"mail_queue":"sync"`)
}

func TestEvents_StreamsChangesUntilClosed(t *testing.T) {
	feed := services.NewChangeFeed()
	h := NewEventsHandler(feed, 30)
	r := gin.New()
	r.GET("/api/events", asAdmin, h.Stream)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events?tables=courses")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return feed.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	feed.PublishRow("notices", services.ChangeInsert, "9", nil)
	feed.PublishRow("courses", services.ChangeInsert, "7", gin.H{"id": 7})

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `data: {"table":"courses","type":"INSERT","row_id":"7"`)
	assert.NotContains(t, string(buf[:n]), "notices")

	h.Close()
	assert.Eventually(t, func() bool { return feed.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func nextData(t *testing.T, rd *bufio.Reader) string {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return line
		}
	}
}

func TestEvents_StudentOnlyReceivesOwnMessages(t *testing.T) {
	feed := services.NewChangeFeed()
	h := NewEventsHandler(feed, 30)
	defer h.Close()
	r := gin.New()
	r.GET("/api/events", asStudent(3), h.Stream)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return feed.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed.PublishRow("chat_messages", services.ChangeInsert, "1",
		&models.ChatMessage{ID: 1, SenderID: 1, ReceiverID: 2, MessageText: "between a and b"})
	feed.PublishRow("users", services.ChangeUpdate, "2", &models.User{ID: 2, Email: "b@deedox.local"})
	feed.PublishRow("chat_messages", services.ChangeInsert, "2",
		&models.ChatMessage{ID: 2, SenderID: 1, ReceiverID: 3, MessageText: "hi c"})
	feed.PublishRow("courses", services.ChangeInsert, "7", gin.H{"id": 7})

	rd := bufio.NewReader(resp.Body)
	first := nextData(t, rd)
	assert.Contains(t, first, `"row_id":"2"`)
	assert.Contains(t, first, "hi c")
	second := nextData(t, rd)
	assert.Contains(t, second, `"table":"courses"`)

	for _, line := range []string{first, second} {
		assert.NotContains(t, line, "between a and b")
		assert.NotContains(t, line, "b@deedox.local")
	}
}
