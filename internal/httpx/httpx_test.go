package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sitegate.io/internal/obs"
)

func TestRequestIDAssignsAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obs.RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rr.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-from-client")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "req-from-client", seen)
}

func TestWriteInternalErrorHidesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(obs.WithRequestID(req.Context(), "corr-1"))
	rr := httptest.NewRecorder()

	WriteInternalError(rr, req, errors.New(`pq: relation "secret_table" does not exist`))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret_table")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "corr-1", body["correlation_id"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "body", verr.Fields[0].Field)
}

func TestValidationErrorOrNil(t *testing.T) {
	var verr ValidationError
	require.NoError(t, verr.OrNil())
	verr.Add("limit", "must be positive")
	require.EqualError(t, verr.OrNil(), "validation failed: limit: must be positive")
}
