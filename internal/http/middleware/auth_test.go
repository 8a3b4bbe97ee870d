package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/auth"
)

func authRouter(t *testing.T, opts AuthOptions) (*gin.Engine, *auth.Resolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	res := auth.NewResolver("test-secret", "worldfriends")
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/me", Authenticate(res, opts), func(c *gin.Context) {
		if got := auth.UserIDFrom(c.Request.Context()); got != UserID(c) {
			t.Errorf("request ctx user %q != gin user %q", got, UserID(c))
		}
		c.String(http.StatusOK, UserID(c))
	})
	return r, res
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	r, res := authRouter(t, AuthOptions{})
	tok, err := res.Issue("u-42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "u-42" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	r, _ := authRouter(t, AuthOptions{})
	other := auth.NewResolver("other-secret", "worldfriends")
	forged, _ := other.Issue("u-1", time.Hour)

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-jwt",
		"forged":  "Bearer " + forged,
		"scheme":  "Basic abc",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthenticate_QueryParam(t *testing.T) {
	r, res := authRouter(t, AuthOptions{QueryParam: "access_token"})
	tok, _ := res.Issue("u-7", time.Hour)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil))
	if w.Code != http.StatusOK || w.Body.String() != "u-7" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	strict, _ := authRouter(t, AuthOptions{})
	w = httptest.NewRecorder()
	strict.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("query token accepted without opt-in: %d", w.Code)
	}
}
