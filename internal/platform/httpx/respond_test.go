package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

func TestRespondErrorCategories(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fmt.Errorf("%w: bad", shared.ErrValidation), http.StatusBadRequest},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized},
		{"credentials", shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: other company", shared.ErrForbidden), http.StatusForbidden},
		{"csrf", shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{"not found", shared.ErrNotFound, http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: already converted", shared.ErrConflict), http.StatusConflict},
		{"persistence", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, nil, tc.err)
			assert.Equal(t, tc.status, rec.Code)

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status, body.Status)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, body.Detail, "connection reset")
			}
		})
	}
}

func TestRespondErrorIncludesFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, nil, shared.NewValidationError("customer_id", "is required"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "is required", body.Errors["customer_id"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "a", target.Name)
}
