package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/worldfriends-backend/internal/auth"
	"github.com/tbourn/worldfriends-backend/internal/config"
	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/services"
	"github.com/tbourn/worldfriends-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      50,
		MaxBodyBytes:   1 << 20,
		LogRedact:      true,
		DefaultLocale:  "en",
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

type testServer struct {
	r      *gin.Engine
	db     *gorm.DB
	tokens *auth.Resolver
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &testServer{r: gin.New(), db: newTestDB(t), tokens: auth.NewResolver("router-secret", "worldfriends")}
	RegisterRoutes(s.r, Deps{
		DB:     s.db,
		Tokens: s.tokens,
		Blobs:  storage.NewStatic("https://cdn.test"),
	}, cfg)
	return s
}

// user seeds a compatible adult with privacy info and a profile.
func (s *testServer) user(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateUser(ctx, s.db, &domain.User{ID: id, UserName: id, Name: "User " + id, Gender: domain.GenderFemale, BirthDate: "1994-06-01", Country: "PT"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	info := &domain.UserInformation{UserID: id, AgeGroup: services.AgeGroupFor("1994-06-01", time.Now())}
	if err := repo.CreateUserInformation(ctx, s.db, info); err != nil {
		t.Fatalf("seed info: %v", err)
	}
	if err := repo.CreateProfile(ctx, s.db, &domain.Profile{UserID: id, SpokenLanguages: []string{"pt"}}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	tok, err := s.tokens.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = s.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := s.do(http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	s := newTestServer(t, cfg)

	w := s.do(http.MethodGet, "/health", "", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t, testConfig())
	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	if w := s.do(http.MethodGet, "/health", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with closed db, got %d", w.Code)
	}
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/api/v1/feed", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	forged, _ := auth.NewResolver("other-secret", "worldfriends").Issue("alice", time.Hour)
	if w := s.do(http.MethodGet, "/api/v1/feed", forged, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: expected 401, got %d", w.Code)
	}
	// /ws accepts the query token but has no hub here.
	tok := s.user(t, "alice")
	if w := s.do(http.MethodGet, "/api/v1/ws?access_token="+tok, "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ws without hub: expected 503, got %d", w.Code)
	}
}

func TestAPI_FriendshipFeedAndNotificationsFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := s.user(t, "alice")
	bob := s.user(t, "bob")

	// Alice sends a request with a retry key; the retry is replayed.
	w := s.do(http.MethodPost, "/api/v1/friendships", alice, map[string]string{"receiver_id": "bob"}, middleware.HeaderIdempotencyKey, "req-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("send request: %d %s", w.Code, w.Body.String())
	}
	f := decode[domain.Friendship](t, w)

	w = s.do(http.MethodPost, "/api/v1/friendships", alice, map[string]string{"receiver_id": "bob"}, middleware.HeaderIdempotencyKey, "req-1")
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %v %s", w.Code, w.Header(), w.Body.String())
	}
	if replay := decode[middleware.ReplayResponse](t, w); replay.ID != f.ID || !replay.Replayed {
		t.Fatalf("replay body %+v, want id %s", replay, f.ID)
	}

	// Without the key the duplicate is a conflict.
	if w := s.do(http.MethodPost, "/api/v1/friendships", alice, map[string]string{"receiver_id": "bob"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate request: expected 409, got %d", w.Code)
	}

	w = s.do(http.MethodGet, "/api/v1/friendships/requests?received=true", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list requests: %d %s", w.Code, w.Body.String())
	}
	if reqs := decode[struct {
		Page []services.FriendshipView `json:"page"`
	}](t, w); len(reqs.Page) != 1 || reqs.Page[0].FriendshipID != f.ID {
		t.Fatalf("bob's received requests: %+v", reqs.Page)
	}

	if w := s.do(http.MethodPost, "/api/v1/friendships/"+f.ID+"/accept", bob, nil); w.Code != http.StatusNoContent {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}

	// Alice posts; Bob sees it in his feed and comments.
	w = s.do(http.MethodPost, "/api/v1/posts", alice, map[string]any{"content": "  Sunset in Porto  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: %d %s", w.Code, w.Body.String())
	}
	post := decode[domain.Post](t, w)

	w = s.do(http.MethodGet, "/api/v1/feed?num_items=10", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("feed: %d %s", w.Code, w.Body.String())
	}
	feed := decode[struct {
		Page   []services.PostView `json:"page"`
		IsDone bool                `json:"is_done"`
	}](t, w)
	if len(feed.Page) != 1 || feed.Page[0].ID != post.ID || feed.Page[0].Content != "Sunset in Porto" || !feed.IsDone {
		t.Fatalf("bob's feed: %+v", feed)
	}

	if w := s.do(http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", bob, map[string]string{"content": "Beautiful!"}); w.Code != http.StatusCreated {
		t.Fatalf("comment: %d %s", w.Code, w.Body.String())
	}

	w = s.do(http.MethodGet, "/api/v1/notifications/unread-count", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unread count: %d", w.Code)
	}
	if n := decode[struct {
		Count int64 `json:"count"`
	}](t, w); n.Count < 2 {
		t.Fatalf("alice should have accept and comment notifications, got %d", n.Count)
	}

	// Service errors surface with their kind's status.
	if w := s.do(http.MethodDelete, "/api/v1/posts/"+post.ID, bob, nil); w.Code != http.StatusForbidden {
		t.Fatalf("bob deleting alice's post: expected 403, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/posts/"+uuid.NewString(), bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown post: expected 404, got %d", w.Code)
	}
}

func TestIdemStore(t *testing.T) {
	db := newTestDB(t)
	st := idemStore{db: db, ttl: time.Hour}
	ctx := context.Background()
	scope := "POST /api/v1/posts/:id/comments p1"

	if _, _, found, err := st.Lookup(ctx, "u1", scope, "k1", time.Now()); err != nil || found {
		t.Fatalf("miss: found=%v err=%v", found, err)
	}
	if err := st.Save(ctx, "u1", scope, "k1", "c-9", http.StatusCreated); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A concurrent retry that lost the race is not an error.
	if err := st.Save(ctx, "u1", scope, "k1", "c-10", http.StatusCreated); err != nil {
		t.Fatalf("duplicate save: %v", err)
	}
	id, status, found, err := st.Lookup(ctx, "u1", scope, "k1", time.Now())
	if err != nil || !found || id != "c-9" || status != http.StatusCreated {
		t.Fatalf("hit: id=%q status=%d found=%v err=%v", id, status, found, err)
	}
	if _, _, found, _ := st.Lookup(ctx, "u1", scope, "k1", time.Now().Add(2*time.Hour)); found {
		t.Fatalf("expired record must not be found")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix_and_joinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	if joinPath("/", "/ws") != "/ws" || joinPath("/api/v1", "/ws") != "/api/v1/ws" {
		t.Fatalf("joinPath mismatch")
	}
}
