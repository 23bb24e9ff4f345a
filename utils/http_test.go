package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("writes body and content type", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusAccepted, map[string]string{"sub": "abc"}))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"sub":"abc"}`, w.Body.String())
	})

	t.Run("nil data writes no body", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusOK, nil))
		assert.Empty(t, w.Body.String())
	})

	t.Run("unencodable data", func(t *testing.T) {
		w := httptest.NewRecorder()
		assert.Error(t, WriteJSON(w, http.StatusOK, make(chan int)))
	})
}

func TestSuccessEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, interface{}) error
		status int
	}{
		{"ok", WriteOK, http.StatusOK},
		{"created", WriteCreated, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w, map[string]string{"id": "1"}))

			assert.Equal(t, tt.status, w.Code)
			var resp struct {
				Data map[string]string `json:"data"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, "1", resp.Data["id"])
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	t.Run("bad request keeps details", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteBadRequest(w, "Invalid request body", map[string]interface{}{"field": "id"}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "bad_request", resp.Error)
		assert.Equal(t, "id", resp.Details["field"])
	})

	t.Run("not found default message", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteNotFound(w, ""))

		assert.Equal(t, http.StatusNotFound, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "not_found", resp.Error)
		assert.Equal(t, "Resource not found", resp.Message)
	})
}
