package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, http.StatusCreated, map[string]any{"id": 7})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"id":7}}`, rec.Body.String())
}

func TestFailEnvelopeOmitsData(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, http.StatusConflict, "Permissão já cadastrada")

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Permissão já cadastrada"}`, rec.Body.String())
}

func TestRespondErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{ErrNotFound, http.StatusNotFound, "resource not found"},
		{ErrDuplicate, http.StatusConflict, "duplicate entry"},
		{ErrValidation, http.StatusBadRequest, "validation failed"},
		{ErrForbidden, http.StatusForbidden, "Acesso negado"},
		{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{errors.New("pgx: broken pipe"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.message)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":true}`))
	err := DecodeJSON(req, &target)
	assert.Error(t, err)
}
