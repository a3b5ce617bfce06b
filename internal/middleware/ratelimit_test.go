package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// limitedRouter serves POST /join behind rl. The X-Test-User header plays
// the part of AuthRequired.
func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id, err := strconv.ParseUint(c.GetHeader("X-Test-User"), 10, 64); err == nil {
			c.Set(ContextUserID, uint(id))
		}
		c.Next()
	})
	router.Use(rl.Middleware())
	router.POST("/join", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func hit(router *gin.Engine, addr, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/join", nil)
	req.RemoteAddr = addr
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenBlocked(t *testing.T) {
	router := limitedRouter(NewRateLimiter(1, 2))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, hit(router, "10.0.0.1:12345", "").Code)
	}

	expected := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}
	assert.Equal(t, expected, codes)
}

func TestRateLimit_RejectionBody(t *testing.T) {
	router := limitedRouter(NewRateLimiter(1, 1))
	hit(router, "10.0.0.1:12345", "")
	w := hit(router, "10.0.0.1:12345", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.NotEmpty(t, body.Errors)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		byUser  bool
		first   [2]string // addr, user
		second  [2]string
		allowed bool
	}{
		{"ip: other address has its own bucket", false, [2]string{"10.0.0.1:1", ""}, [2]string{"10.0.0.2:1", ""}, true},
		{"ip: users behind one address share a bucket", false, [2]string{"10.0.0.1:1", "7"}, [2]string{"10.0.0.1:1", "8"}, false},
		{"user: users behind one address are independent", true, [2]string{"10.0.0.1:1", "7"}, [2]string{"10.0.0.1:1", "8"}, true},
		{"user: one user across addresses shares a bucket", true, [2]string{"10.0.0.1:1", "7"}, [2]string{"10.0.0.2:1", "7"}, false},
		{"user: anonymous falls back to the address", true, [2]string{"10.0.0.1:1", ""}, [2]string{"10.0.0.1:1", ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(0.001, 1)
			if tt.byUser {
				rl.ByUser()
			}
			router := limitedRouter(rl)

			if w := hit(router, tt.first[0], tt.first[1]); w.Code != http.StatusNoContent {
				t.Fatalf("first request status = %d, expected %d", w.Code, http.StatusNoContent)
			}
			got := hit(router, tt.second[0], tt.second[1]).Code == http.StatusNoContent
			if got != tt.allowed {
				t.Errorf("second request allowed = %v, expected %v", got, tt.allowed)
			}
		})
	}
}
