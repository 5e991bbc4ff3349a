package staticfile

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildOK(t *testing.T) {
	mt := time.Date(2024, 3, 9, 10, 11, 12, 999, time.FixedZone("X", 3600))
	token := CacheToken{ETag: `"1.2-5"`, LastModified: mt, HasLastModified: true}

	resp := BuildOK("kawaii/test", token, "text/plain; charset=utf-8", EncodingIdentity, []byte("hello"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "hello", string(resp.Body))
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.Equal(t, "kawaii/test", resp.Header.Get("Server"))
	assert.Equal(t, "Accept-Encoding", resp.Header.Get("Vary"))
	assert.Equal(t, "public", resp.Header.Get("Cache-Control"))
	assert.Equal(t, `"1.2-5"`, resp.Header.Get("ETag"))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Sat, 09 Mar 2024 09:11:12 GMT", resp.Header.Get("Last-Modified"))
	_, hasEncoding := resp.Header["Content-Encoding"]
	assert.False(t, hasEncoding)
}

func TestBuildOK_DeflateAndNoModTime(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03}
	resp := BuildOK("s", CacheToken{ETag: `"5"`}, "text/plain", EncodingDeflate, body)

	assert.Equal(t, "deflate", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "3", resp.Header.Get("Content-Length"))
	_, hasLastModified := resp.Header["Last-Modified"]
	assert.False(t, hasLastModified)
}

func TestBuildNotModified(t *testing.T) {
	resp := BuildNotModified("s", CacheToken{ETag: `"1.2-5"`, HasLastModified: true, LastModified: time.Now()})

	assert.Equal(t, http.StatusNotModified, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Equal(t, `"1.2-5"`, resp.Header.Get("ETag"))
	assert.Equal(t, "s", resp.Header.Get("Server"))
	for _, h := range []string{"Content-Length", "Content-Type", "Content-Encoding", "Last-Modified"} {
		_, ok := resp.Header[h]
		assert.False(t, ok, h)
	}
}

func TestBuildError(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusInternalServerError} {
		resp := BuildError("s", status, nil)
		assert.Equal(t, status, resp.Status)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, "s", resp.Header.Get("Server"))
		assert.NotEmpty(t, resp.Body)
		assert.Contains(t, string(resp.Body), http.StatusText(status))
		for _, h := range []string{"Cache-Control", "ETag", "Vary", "Last-Modified"} {
			_, ok := resp.Header[h]
			assert.False(t, ok, h)
		}
	}
}

func TestBuildError_InternalIncludesEscapedCause(t *testing.T) {
	resp := BuildError("s", http.StatusInternalServerError, errors.New(`open /srv/<x>: permission denied`))
	body := string(resp.Body)
	assert.Contains(t, body, "open /srv/&lt;x&gt;: permission denied")
	assert.NotContains(t, body, "<x>")
	assert.Equal(t, strconv.Itoa(len(resp.Body)), resp.Header.Get("Content-Length"))

	// The cause of a 404 is never echoed.
	notFound := BuildError("s", http.StatusNotFound, errors.New("secret detail"))
	assert.False(t, strings.Contains(string(notFound.Body), "secret detail"))
}

func TestBuildError_UnknownStatusBecomesInternal(t *testing.T) {
	resp := BuildError("s", http.StatusTeapot, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}
