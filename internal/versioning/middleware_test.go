package versioning

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func versionedHandler(t *testing.T) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(logger)(next)
}

func TestMiddlewareStampsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	versionedHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Current.String(), rec.Header().Get(CurrentVersionHeader))
	assert.NotEmpty(t, rec.Header().Get(SupportedVersionsHeader))
}

func TestMiddlewareAcceptsSupportedVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AcceptVersionHeader, Current.String())
	rec := httptest.NewRecorder()
	versionedHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsUnsupportedVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AcceptVersionHeader, "99.0.0")
	rec := httptest.NewRecorder()
	versionedHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestMiddlewareRejectsMalformedVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AcceptVersionHeader, "not-a-version")
	rec := httptest.NewRecorder()
	versionedHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
