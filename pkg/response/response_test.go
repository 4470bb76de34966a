package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
	"github.com/noah-isme/attendance-approval-api/pkg/middleware/requestid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)
	return w
}

func TestJSONWithMeta(t *testing.T) {
	w := serve(func(c *gin.Context) {
		JSON(c, http.StatusOK, gin.H{"id": 1}, map[string]interface{}{"count": 1})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":{"id":1},"meta":{"count":1}}`, w.Body.String())
}

func TestErrorEnvelope(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided"))
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "INVALID_TRANSITION", body.Error.Code)
	assert.Equal(t, "request already decided", body.Error.Message)
	assert.Equal(t, "req-42", body.Meta["request_id"])
}

func TestErrorHidesInternalCause(t *testing.T) {
	var recorded []*gin.Error
	w := serve(func(c *gin.Context) {
		Error(c, errors.New("pq: connection refused"))
		recorded = c.Errors
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Error(), "connection refused")
}

func TestFile(t *testing.T) {
	w := serve(func(c *gin.Context) {
		File(c, "requests_all.csv", "text/csv", []byte("ID\n1\n"))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="requests_all.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID\n1\n", w.Body.String())
}

func TestNoContentWritesStatusWithoutEngine(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	NoContent(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, c.Writer.Written())
	assert.Empty(t, w.Body.String())
}
