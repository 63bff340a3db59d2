package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

func TestAuthRequired_NoHeader(t *testing.T) {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthRequired_InvalidFormat(t *testing.T) {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	testCases := []string{
		"InvalidToken",
		"Basic token123",
		"Bearer",
		"Bearer ",
	}

	for _, authHeader := range testCases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", authHeader)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected status %d, got %d", authHeader, http.StatusUnauthorized, w.Code)
		}
	}
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid.jwt.token")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthRequired_ValidToken(t *testing.T) {
	token, _ := utils.GenerateToken(1, "ada@example.com", "admin", 24)

	router := gin.New()
	router.Use(AuthRequired())
	var identity services.Identity
	router.GET("/protected", func(c *gin.Context) {
		identity = GetIdentity(c)
		c.JSON(200, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got, ok := identity.(services.Authenticated); !ok || got.UserID != 1 || got.Role != "admin" {
		t.Errorf("unexpected identity %#v", identity)
	}
}

func TestStreamAuth_QueryToken(t *testing.T) {
	token, _ := utils.GenerateToken(5, "s@example.com", "Student", 1)

	router := gin.New()
	router.GET("/events", StreamAuth(), func(c *gin.Context) {
		c.String(200, "%d", GetUserID(c))
	})
	router.GET("/plain", AuthRequired(), func(c *gin.Context) {
		c.String(200, "ok")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/events?token="+token, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "5" {
		t.Errorf("expected 200 with user 5, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/plain?token="+token, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token must not satisfy AuthRequired, got %d", w.Code)
	}
}

func TestOptionalAuth(t *testing.T) {
	token, _ := utils.GenerateToken(9, "s@example.com", "Student", 1)

	router := gin.New()
	router.Use(OptionalAuth())
	router.GET("/who", func(c *gin.Context) {
		c.String(200, GetIdentity(c).String())
	})

	cases := []struct {
		header string
		want   string
	}{
		{"", "guest"},
		{"Bearer not-a-token", "guest"},
		{"Bearer " + token, "user:9(Student)"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/who", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != tc.want {
			t.Errorf("header %q: expected %q, got %d %q", tc.header, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestAdminRequired(t *testing.T) {
	cases := []struct {
		role string
		want int
	}{
		{"", http.StatusForbidden},
		{"Student", http.StatusForbidden},
		{"admin", http.StatusOK},
	}

	for _, tc := range cases {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if tc.role != "" {
				c.Set(ContextRole, tc.role)
			}
			c.Next()
		})
		router.Use(AdminRequired())
		router.GET("/admin", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/admin", nil)
		router.ServeHTTP(w, req)

		if w.Code != tc.want {
			t.Errorf("role %q: expected status %d, got %d", tc.role, tc.want, w.Code)
		}
	}
}

func TestContextGetters(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for missing user_id, got %d", id)
	}
	if GetUserIDPtr(c) != nil {
		t.Error("expected nil pointer for missing user_id")
	}
	if name := GetUsername(c); name != "" {
		t.Errorf("expected empty username, got %q", name)
	}
	if _, ok := GetIdentity(c).(services.Anonymous); !ok {
		t.Error("expected anonymous identity by default")
	}

	c.Set(ContextUserID, uint(42))
	c.Set(ContextUsername, "ada@example.com")
	c.Set(ContextRole, "admin")
	if id := GetUserID(c); id != 42 {
		t.Errorf("expected 42, got %d", id)
	}
	if p := GetUserIDPtr(c); p == nil || *p != 42 {
		t.Errorf("expected pointer to 42, got %v", p)
	}
	if name := GetUsername(c); name != "ada@example.com" {
		t.Errorf("expected ada@example.com, got %q", name)
	}
	if role := GetRole(c); role != "admin" {
		t.Errorf("expected admin, got %q", role)
	}
}
