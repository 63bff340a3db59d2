package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	handler(c)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
		code    int
		message string
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"title": "Algebra"}) }, 200, 0, "ok"},
		{"created", func(c *gin.Context) { Created(c, gin.H{"id": 1}) }, 201, 0, "created"},
		{"bad request", func(c *gin.Context) { BadRequest(c, "title is required") }, 400, 400, "title is required"},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "token expired") }, 401, 401, "token expired"},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "admin required") }, 403, 403, "admin required"},
		{"not found", func(c *gin.Context) { NotFound(c, "course not found") }, 404, 404, "course not found"},
		{"conflict", func(c *gin.Context) { Conflict(c, "stale revision") }, 409, 409, "stale revision"},
		{"server error", func(c *gin.Context) { ServerError(c, "boom") }, 500, 500, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(tt.handler)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := parseResponse(t, w)
			if resp.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, resp.Code)
			}
			if resp.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

func TestPaged(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Paged(c, 42, 2, 10, []string{"a", "b"})
	})

	var body struct {
		Data PageData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Data.Total != 42 || body.Data.Page != 2 || body.Data.PageSize != 10 {
		t.Errorf("unexpected page data: %+v", body.Data)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, fmt.Errorf("saving setting: %w", NewConflict("revision mismatch")))
	})

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if resp := parseResponse(t, w); resp.Message != "revision mismatch" {
		t.Errorf("expected message 'revision mismatch', got %q", resp.Message)
	}
}

func TestError_WithGenericError(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, errors.New("something went wrong"))
	})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if resp := parseResponse(t, w); resp.Code != 500 {
		t.Errorf("expected code 500, got %d", resp.Code)
	}
}

func TestAbortProxy(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		AbortProxy(c, http.StatusForbidden, "model x is disabled")
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	var body ProxyError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Error != "model x is disabled" {
		t.Errorf("unexpected error body %q", body.Error)
	}
}
