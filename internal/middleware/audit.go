package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/deedox/platform/internal/services"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

var sensitiveKeys = map[string]bool{
	"password":      true,
	"old_password":  true,
	"new_password":  true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"code":          true,
}

// AuditLog records admin write operations (POST/PUT/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(bodyBytes)
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"audit":  true,
		}
		if bodySnippet != "" {
			extra["body"] = bodySnippet
		}

		log := services.LogInfo
		if status >= 400 {
			log = services.LogWarning
		}
		log(module, action, message, GetUserIDPtr(c), c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/admin/courses/:id/toggle" + "POST" → module="courses", action="toggle"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	path = strings.TrimPrefix(path, "admin/")

	parts := strings.Split(path, "/")
	module = parts[0]
	if module == "" {
		module = "unknown"
	}

	switch method {
	case "POST":
		action = "create"
	case "PUT":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		action = last
	}
	return module, action
}

func formatAuditMessage(username, method, path string, status int) string {
	outcome := "ok"
	if status < 200 || status >= 300 {
		outcome = "failed"
	}
	return "[audit] " + username + " " + method + " " + path + " " + outcome
}

// maskSensitiveFields replaces sensitive values in a JSON object body. Bodies
// that are not JSON objects are dropped.
func maskSensitiveFields(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "[non-json body]"
	}
	maskMap(obj)
	out, _ := json.Marshal(obj)
	return string(out)
}

func maskMap(m map[string]interface{}) {
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			m[k] = "***"
			continue
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			maskMap(vv)
		case []interface{}:
			for _, item := range vv {
				if im, ok := item.(map[string]interface{}); ok {
					maskMap(im)
				}
			}
		}
	}
}
