package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETag(t *testing.T) {
	handler := ETag()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	etag := rec.Header().Get("ETag")
	assert.Equal(t, WeakETag([]byte("ok")), etag)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `"other", `+etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `"other"`)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestETag_SkipsErrorsAndWrites(t *testing.T) {
	failing := ETag()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))
	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", rec.Body.String())
	assert.Empty(t, rec.Header().Get("ETag"))

	rec = httptest.NewRecorder()
	ETag()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, "ok", rec.Body.String())
	assert.Empty(t, rec.Header().Get("ETag"))
}

func TestParseIfNoneMatch(t *testing.T) {
	assert.Nil(t, ParseIfNoneMatch(""))
	assert.Equal(t, []string{"*"}, ParseIfNoneMatch("*"))
	assert.Equal(t, []string{`"a"`, `W/"b"`}, ParseIfNoneMatch(`"a", W/"b", junk`))

	assert.True(t, MatchesETag(`W/"b"`, []string{`"b"`}))
	assert.True(t, MatchesETag(`"x"`, []string{"*"}))
	assert.False(t, MatchesETag(`"x"`, nil))
}
