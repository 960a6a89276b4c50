package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"neurolabel/detector"
	"neurolabel/models"
	"neurolabel/storage"
	"neurolabel/utils"
)

func TestAbortWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"image not found", fmt.Errorf("lookup: %w", models.ErrImageNotFound), http.StatusNotFound, `{"error":"image not found"}`},
		{"file missing", fmt.Errorf("%w: /srv/uploads/a.jpg", storage.ErrAssetNotFound), http.StatusNotFound, `{"error":"file not found on disk"}`},
		{"decode", fmt.Errorf("%w: unknown format", utils.ErrDecode), http.StatusBadRequest, `{"error":"cannot decode image: unknown format"}`},
		{"too large", fmt.Errorf("%w: limit is 10 bytes", ErrTooLarge), http.StatusRequestEntityTooLarge, `{"error":"upload too large: limit is 10 bytes"}`},
		{"inference", fmt.Errorf("%w: Post \"http://10.0.0.5:5000/predict\": connection refused", detector.ErrInference), http.StatusBadGateway, `{"error":"inference failed"}`},
		{"internal", errors.New("cannot create /srv/uploads/x.jpg: permission denied"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/images/1", nil)

			abortWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.True(t, c.IsAborted())
		})
	}
}
