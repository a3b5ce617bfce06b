package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/internal/utils"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
}

func TestToAppError(t *testing.T) {
	wrap := func(kind error) error {
		return fmt.Errorf("join: %w", &services.BusinessError{Kind: kind, Messages: []string{"reason"}})
	}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid session", wrap(services.ErrInvalidSession), http.StatusUnauthorized},
		{"insufficient privileges", wrap(services.ErrInsufficientPrivileges), http.StatusForbidden},
		{"not allowed", wrap(services.ErrNotAllowed), http.StatusForbidden},
		{"not found", wrap(services.ErrNotFound), http.StatusNotFound},
		{"invalid fields", wrap(services.ErrInvalidFields), http.StatusBadRequest},
		{"invalid time", wrap(services.ErrInvalidTime), http.StatusBadRequest},
		{"duplicate application", wrap(services.ErrDuplicateApplication), http.StatusConflict},
		{"already joined or invited", wrap(services.ErrAlreadyJoinedOrInvited), http.StatusConflict},
		{"already joined", wrap(services.ErrAlreadyJoined), http.StatusConflict},
		{"interview not available", wrap(services.ErrInterviewNotAvailable), http.StatusUnprocessableEntity},
		{"server", wrap(services.ErrServer), http.StatusInternalServerError},
		{"plain error", errors.New("database is locked"), http.StatusInternalServerError},
		{"app error", response.NewConflict("taken"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAppError(tt.err)
			if got.HTTPStatus != tt.status {
				t.Errorf("toAppError(%v).HTTPStatus = %d, expected %d", tt.err, got.HTTPStatus, tt.status)
			}
		})
	}
}

func TestToAppError_Details(t *testing.T) {
	err := &services.BusinessError{Kind: services.ErrInvalidFields, Messages: []string{"name is required", "bad restriction"}}
	got := toAppError(err)
	assert.Equal(t, []string{"name is required", "bad restriction"}, got.Details)

	plain := toAppError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, "internal server error", plain.Message)
	assert.Empty(t, plain.Details)
}

func TestGroupRef(t *testing.T) {
	tests := []struct {
		name   string
		kind   models.GroupKind
		id     string
		ok     bool
		expect models.GroupRef
	}{
		{"team", models.KindTeam, "3", true, models.GroupRef{Kind: models.KindTeam, ID: 3}},
		{"organization", models.KindOrganization, "12", true, models.GroupRef{Kind: models.KindOrganization, ID: 12}},
		{"zero id", models.KindTeam, "0", false, models.GroupRef{}},
		{"negative id", models.KindTeam, "-1", false, models.GroupRef{}},
		{"not a number", models.KindProject, "abc", false, models.GroupRef{}},
		{"no kind", "", "3", false, models.GroupRef{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got models.GroupRef
				ok  bool
			)
			router := gin.New()
			if tt.kind != "" {
				router.Use(WithGroupKind(tt.kind))
			}
			router.GET("/groups/:id", func(c *gin.Context) {
				got, ok = groupRef(c)
				if ok {
					c.Status(http.StatusNoContent)
				}
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/groups/"+tt.id, nil)
			router.ServeHTTP(w, req)

			if ok != tt.ok {
				t.Fatalf("groupRef ok = %v, expected %v", ok, tt.ok)
			}
			if got != tt.expect {
				t.Errorf("groupRef = %v, expected %v", got, tt.expect)
			}
			if !tt.ok && w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, expected %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "handlers.db") + "?_busy_timeout=5000",
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	m := services.NewMembership(db, services.Options{})
	groups := NewGroupHandler(m)
	invitations := NewInvitationHandler(m)
	auth := NewAuthHandler(services.NewAuthService(db, &config.JWTConfig{ExpireHour: 1, RefreshExpireHour: 24}, &config.LDAPConfig{}))

	r := gin.New()
	r.POST("/api/auth/register", auth.Register)
	r.POST("/api/auth/login", auth.Login)

	protected := r.Group("/api", middleware.AuthRequired())
	teams := protected.Group("/teams", WithGroupKind(models.KindTeam))
	teams.POST("", groups.Create)
	teams.GET("/:id", groups.Get)
	teams.POST("/:id/join", groups.Join)
	teams.GET("/:id/members", groups.Members)
	teams.POST("/:id/invitations", invitations.Invite)
	protected.GET("/invitations", invitations.List)
	protected.POST("/invitations/:id/accept", invitations.Accept)

	return &testServer{t: t, db: db, router: r}
}

func (s *testServer) do(method, path, token string, body any) (int, apiResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

// login registers a local account and returns its access token.
func (s *testServer) login(username string) (uint, string) {
	s.t.Helper()
	code, _ := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "secret123",
		"email":    username + "@example.com",
	})
	require.Equal(s.t, http.StatusCreated, code)

	code, resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "secret123",
	})
	require.Equal(s.t, http.StatusOK, code)

	var session struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &session))
	return session.User.ID, session.AccessToken
}

func (s *testServer) createTeam(token, name, restriction string) uint {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/api/teams", token, map[string]string{
		"name":        name,
		"restriction": restriction,
	})
	require.Equal(s.t, http.StatusCreated, code, resp.Message)

	var team struct {
		ID uint `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &team))
	require.NotZero(s.t, team.ID)
	return team.ID
}

func TestRouter_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(http.MethodPost, "/api/teams", "", map[string]string{"name": "core"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 401, resp.Code)

	code, _ = s.do(http.MethodPost, "/api/teams", "not-a-token", map[string]string{"name": "core"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_JoinOpenTeam(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.login("alice")
	_, bob := s.login("bob")

	teamID := s.createTeam(alice, "core", string(models.RestrictionOpen))
	path := fmt.Sprintf("/api/teams/%d", teamID)

	code, resp := s.do(http.MethodPost, path+"/join", bob, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	var outcome struct {
		Result  string `json:"result"`
		Applied bool   `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, "OK", outcome.Result)
	assert.False(t, outcome.Applied)

	code, resp = s.do(http.MethodPost, path+"/join", bob, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, resp.Errors)

	code, resp = s.do(http.MethodGet, path+"/members", alice, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.EqualValues(t, 2, page.Total)
}

func TestRouter_JoinApplicationRequired(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.login("alice")
	_, bob := s.login("bob")

	teamID := s.createTeam(alice, "core", string(models.RestrictionApplicationRequired))

	code, resp := s.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/join", teamID), bob, nil)
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var outcome struct {
		Applied     bool `json:"applied"`
		Application *struct {
			ID uint `json:"id"`
		} `json:"application"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.True(t, outcome.Applied)
	require.NotNil(t, outcome.Application)
	assert.NotZero(t, outcome.Application.ID)
}

func TestRouter_InviteAndAccept(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.login("alice")
	carolID, carol := s.login("carol")

	teamID := s.createTeam(alice, "core", string(models.RestrictionInviteOnly))
	path := fmt.Sprintf("/api/teams/%d", teamID)

	code, resp := s.do(http.MethodPost, path+"/invitations", carol, map[string]any{
		"receiver_id": carolID,
		"type":        string(models.InvitationJoin),
	})
	assert.Equal(t, http.StatusForbidden, code, resp.Message)

	code, resp = s.do(http.MethodPost, path+"/invitations", alice, map[string]any{
		"receiver_id": carolID,
		"type":        string(models.InvitationJoin),
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, resp = s.do(http.MethodGet, "/api/invitations", carol, nil)
	require.Equal(t, http.StatusOK, code)
	var invitations []struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &invitations))
	require.Len(t, invitations, 1)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/api/invitations/%d/accept", invitations[0].ID), carol, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, _ = s.do(http.MethodGet, path, carol, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_BadRequests(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.login("alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing name", http.MethodPost, "/api/teams", map[string]string{}, http.StatusBadRequest},
		{"bad restriction", http.MethodPost, "/api/teams", map[string]string{"name": "x", "restriction": "secret"}, http.StatusBadRequest},
		{"bad id", http.MethodPost, "/api/teams/abc/join", nil, http.StatusBadRequest},
		{"unknown team", http.MethodPost, "/api/teams/999/join", nil, http.StatusNotFound},
		{"unknown invitation", http.MethodPost, "/api/invitations/999/accept", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(tt.method, tt.path, alice, tt.body)
			if code != tt.status {
				t.Errorf("%s %s status = %d, expected %d (%s)", tt.method, tt.path, code, tt.status, resp.Message)
			}
		})
	}
}

func TestRouter_AcceptWithEmptyChunkedBody(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.login("alice")
	carolID, carol := s.login("carol")

	teamID := s.createTeam(alice, "core", string(models.RestrictionInviteOnly))
	code, resp := s.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/invitations", teamID), alice, map[string]any{
		"receiver_id": carolID,
		"type":        string(models.InvitationJoin),
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var inv struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &inv))

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/api/invitations/%d/accept", inv.ID), nil)
	req.Body = io.NopCloser(strings.NewReader(""))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+carol)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("accept with empty chunked body status = %d, expected %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
}
