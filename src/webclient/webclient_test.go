package webclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	old := InitialDelay
	InitialDelay = time.Millisecond
	defer func() { InitialDelay = old }()

	var out struct{ Status string }
	require.NoError(t, GetJSON(context.Background(), NewDefault(time.Second), srv.URL, 3, &out))
	assert.Equal(t, "OK", out.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out any
	err := GetJSON(context.Background(), NewDefault(time.Second), srv.URL, 5, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := DoWithRetry(ctx, 3, time.Hour, func() (int, []byte, error) {
		return http.StatusBadGateway, nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = w.Write([]byte("# Regulamin"))
	}))
	defer srv.Close()

	body, ct, err := GetBytes(context.Background(), NewDefault(time.Second), srv.URL, 1, 1<<10)
	require.NoError(t, err)
	assert.Equal(t, "# Regulamin", string(body))
	assert.Equal(t, "text/markdown", ct)

	_, _, err = GetBytes(context.Background(), NewDefault(time.Second), srv.URL, 1, 4)
	assert.ErrorContains(t, err, "exceeds 4 bytes")
}

func TestHTMLHelpers(t *testing.T) {
	doc, err := ParseHTML([]byte(`<html><head><title>A - Problem</title></head><body>
<div id="main" class="box wide"><h1> Tytuł <small>(x)</small></h1><a href="/a">one</a><a href="/b">two</a></div>
</body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "A - Problem", Text(Find(doc, Tag("title"))))
	main := Find(doc, ID("main"))
	require.NotNil(t, main)
	assert.Equal(t, main, Find(doc, Class("wide")))
	assert.Nil(t, Find(doc, Class("wid")))
	assert.Equal(t, "Tytuł", FirstText(Find(main, Tag("h1"))))
	assert.Equal(t, " Tytuł (x)", Text(Find(main, Tag("h1"))))

	links := FindAll(doc, Tag("a"))
	require.Len(t, links, 2)
	assert.Equal(t, "/b", Attr(links[1], "href"))
	assert.Empty(t, Attr(links[1], "title"))
}
