package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

// AuditLog records write operations to system_logs once the handler ran.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut &&
			method != http.MethodPatch && method != http.MethodDelete {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		entry := services.AuditEntry{
			Module:    module,
			Action:    action,
			Message:   formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status),
			Group:     groupFromRoute(c),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra: map[string]any{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   bodySnippet,
			},
		}
		if userID := GetUserID(c); userID > 0 {
			entry.UserID = &userID
		}

		if status >= http.StatusInternalServerError {
			services.LogError(entry)
		} else {
			services.LogInfo(entry)
		}
	}
}

// parseRouteInfo derives module and action from a route pattern, e.g.
// "/api/teams/:id/join" + POST gives ("teams", "join") and
// "/api/teams/:id" + PUT gives ("teams", "update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")
	parts := strings.Split(path, "/")

	module = parts[0]
	if module == "" {
		module = "unknown"
	}

	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if !strings.HasPrefix(last, ":") {
			return module, last
		}
	}

	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

// groupFromRoute identifies the group addressed by routes shaped
// /api/<kind>/:id/...
func groupFromRoute(c *gin.Context) *models.GroupRef {
	segment := strings.SplitN(strings.TrimPrefix(c.FullPath(), "/api/"), "/", 2)[0]
	kind, err := models.ParseGroupKind(segment)
	if err != nil {
		return nil
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil
	}
	return &models.GroupRef{Kind: kind, ID: uint(id)}
}

func formatAuditMessage(username, method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	if username == "" {
		username = "anonymous"
	}
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed (" + strconv.Itoa(status) + ")")
	}
	return b.String()
}

// maskSensitiveFields replaces secret values in a JSON body.
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "old_password", "new_password", "refresh_token", "secret", "token", "access_token"}
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			body = maskJSONValue(body, key)
		}
	}
	return body
}

// maskJSONValue is a best-effort mask of every string value stored under key.
func maskJSONValue(body, key string) string {
	needle := "\"" + key + "\""
	from := 0
	for {
		idx := strings.Index(strings.ToLower(body[from:]), needle)
		if idx == -1 {
			return body
		}
		idx += from

		colonIdx := strings.Index(body[idx+len(needle):], ":")
		if colonIdx == -1 {
			return body
		}
		valueStart := idx + len(needle) + colonIdx + 1
		for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
			valueStart++
		}
		if valueStart >= len(body) || body[valueStart] != '"' {
			from = valueStart
			continue
		}

		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		body = body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
		from = valueStart + 4
	}
}
