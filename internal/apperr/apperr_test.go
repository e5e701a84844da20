package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(New(NotFound, "room not found")))
	assert.Equal(t, PermissionDenied, KindOf(fmt.Errorf("outer: %w", New(PermissionDenied, "nope"))))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Internal, KindOf(Configuration("missing key")))
	assert.Nil(t, Wrap(nil, Internal, "unused"))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Unauthenticated:    http.StatusUnauthorized,
		PermissionDenied:   http.StatusForbidden,
		InvalidArgument:    http.StatusBadRequest,
		NotFound:           http.StatusNotFound,
		FailedPrecondition: http.StatusPreconditionFailed,
		Internal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
}

func TestWrite(t *testing.T) {
	t.Run("classified error keeps its message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Write(rec, New(FailedPrecondition, "Room is not in battle mode"))

		require.Equal(t, http.StatusPreconditionFailed, rec.Code)
		var b body
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, FailedPrecondition, b.Error.Kind)
		assert.Equal(t, "Room is not in battle mode", b.Error.Message)
	})

	t.Run("internal details are hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Write(rec, Wrap(errors.New("pq: connection refused"), Internal, "update room"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Contains(t, rec.Body.String(), `"kind":"internal"`)
	})

	t.Run("configuration errors surface as internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Write(rec, Configuration("Missing PRIVATE_API_KEY in environment."))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "PRIVATE_API_KEY")
	})
}
