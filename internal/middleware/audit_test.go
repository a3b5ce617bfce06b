package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/gin-gonic/gin"
)

func TestParseRouteInfo(t *testing.T) {
	tests := []struct {
		path       string
		method     string
		wantModule string
		wantAction string
	}{
		{"/api/teams", "POST", "teams", "create"},
		{"/api/teams/:id", "PUT", "teams", "update"},
		{"/api/teams/:id", "DELETE", "teams", "delete"},
		{"/api/teams/:id/join", "POST", "teams", "join"},
		{"/api/invitations/:id/accept", "POST", "invitations", "accept"},
		{"/api/teams/:id/members/:memberId", "DELETE", "teams", "delete"},
		{"", "POST", "unknown", "create"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			module, action := parseRouteInfo(tt.path, tt.method)
			if module != tt.wantModule || action != tt.wantAction {
				t.Errorf("parseRouteInfo(%q, %q) = (%q, %q), expected (%q, %q)",
					tt.path, tt.method, module, action, tt.wantModule, tt.wantAction)
			}
		})
	}
}

func TestMaskSensitiveFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"password", `{"username":"bob","password":"hunter2"}`, `{"username":"bob","password":"***"}`},
		{"both passwords", `{"old_password": "a", "new_password": "b"}`, `{"old_password": "***", "new_password": "***"}`},
		{"refresh token", `{"refresh_token":"abc"}`, `{"refresh_token":"***"}`},
		{"nothing secret", `{"name":"core"}`, `{"name":"core"}`},
		{"non string value", `{"token":null}`, `{"token":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSensitiveFields(tt.input); got != tt.want {
				t.Errorf("maskSensitiveFields(%q) = %q, expected %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatAuditMessage(t *testing.T) {
	if got := formatAuditMessage("bob", "POST", "/api/teams/1/join", 200); got != "[Audit] bob POST /api/teams/1/join -> OK" {
		t.Errorf("formatAuditMessage() = %q", got)
	}
	if got := formatAuditMessage("", "DELETE", "/api/teams/1", 403); got != "[Audit] anonymous DELETE /api/teams/1 -> Failed (403)" {
		t.Errorf("formatAuditMessage() = %q", got)
	}
}

func TestAuditLog_WritesEntry(t *testing.T) {
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	services.InitSystemLogger(db)
	t.Cleanup(func() { services.InitSystemLogger(nil) })

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserID, uint(7))
		c.Set(ContextUsername, "bob")
		c.Next()
	})
	router.Use(AuditLog())
	router.GET("/api/teams/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/teams/:id/join", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, method := range []string{"GET", "POST"} {
		path := "/api/teams/3"
		if method == "POST" {
			path += "/join"
		}
		req, _ := http.NewRequest(method, path, strings.NewReader(`{"password":"x"}`))
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	var logs []models.SystemLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit rows, expected 1", len(logs))
	}
	entry := logs[0]
	if entry.Module != "teams" || entry.Action != "join" {
		t.Errorf("entry = (%q, %q), expected (%q, %q)", entry.Module, entry.Action, "teams", "join")
	}
	if entry.GroupKind != models.KindTeam || entry.GroupID == nil || *entry.GroupID != 3 {
		t.Errorf("entry group = %s/%v, expected team/3", entry.GroupKind, entry.GroupID)
	}
	if entry.UserID == nil || *entry.UserID != 7 {
		t.Errorf("entry user = %v, expected 7", entry.UserID)
	}
	if strings.Contains(entry.Extra, `"x"`) {
		t.Errorf("password leaked into audit extra: %s", entry.Extra)
	}
}
