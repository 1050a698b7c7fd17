package httputil

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestReadBody(t *testing.T) {
	data, err := ReadBody(reply(http.StatusOK, `{"ok":true}`), 64)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, err = ReadBody(reply(http.StatusOK, strings.Repeat("x", 65)), 64)
	assert.ErrorContains(t, err, "exceeds 64 bytes")
}

func TestReadBody_Status(t *testing.T) {
	_, err := ReadBody(reply(http.StatusServiceUnavailable, " model loading \n"), 64)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "unexpected status 503: model loading", se.Error())

	_, err = ReadBody(reply(http.StatusInternalServerError, ""), 64)
	assert.EqualError(t, err, "unexpected status 500")
}
