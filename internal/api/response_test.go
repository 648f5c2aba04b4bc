package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter, r *http.Request)
		status   int
		validate func(t *testing.T, body []byte)
	}{
		{
			name: "write_json_with_data",
			write: func(w http.ResponseWriter, r *http.Request) {
				WriteJSON(w, r, map[string]string{"message": "test"}, http.StatusOK)
			},
			status: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var result map[string]string
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, "test", result["message"])
			},
		},
		{
			name: "write_success_carries_request_id",
			write: func(w http.ResponseWriter, r *http.Request) {
				WriteSuccess(w, r, map[string]string{"result": "ok"}, "operation completed")
			},
			status: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var response SuccessResponse
				require.NoError(t, json.Unmarshal(body, &response))
				assert.Equal(t, "success", response.Status)
				assert.Equal(t, "operation completed", response.Message)
				assert.Equal(t, "req-1", response.RequestID)

				dataMap, ok := response.Data.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "ok", dataMap["result"])
			},
		},
		{
			name: "write_created",
			write: func(w http.ResponseWriter, r *http.Request) {
				WriteCreated(w, r, map[string]string{"id": "abc"}, "")
			},
			status: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				var response SuccessResponse
				require.NoError(t, json.Unmarshal(body, &response))
				assert.Empty(t, response.Message)
			},
		},
		{
			name: "write_accepted",
			write: func(w http.ResponseWriter, r *http.Request) {
				WriteAccepted(w, r, nil, "queued")
			},
			status: http.StatusAccepted,
			validate: func(t *testing.T, body []byte) {
				var response SuccessResponse
				require.NoError(t, json.Unmarshal(body, &response))
				assert.Nil(t, response.Data)
			},
		},
		{
			name: "write_healthy",
			write: func(w http.ResponseWriter, r *http.Request) {
				WriteHealthy(w, r, "1.0.0", 2)
			},
			status: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(body, &response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, ServiceName, response.Service)
				assert.Equal(t, "1.0.0", response.Version)
				assert.Equal(t, 2, response.ActiveRuns)
				assert.NotEmpty(t, response.Timestamp)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/test", nil)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, "req-1"))

			tt.write(w, r)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			tt.validate(t, w.Body.Bytes())
		})
	}
}
