package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html>
	<head><title> Mirror Home </title></head>
	<body>
		<nav>Navigation</nav>
		<main>
			<h1>Welcome</h1>
			<p>Streaming catalogue.</p>
			<script>var x = 1;</script>
		</main>
		<footer>Footer</footer>
	</body>
</html>`

func TestExtract_TitleAndMain(t *testing.T) {
	title, text, err := Extract(samplePage)
	require.NoError(t, err)
	assert.Equal(t, "Mirror Home", title)
	assert.Contains(t, text, "Welcome")
	assert.Contains(t, text, "Streaming catalogue.")
	assert.NotContains(t, text, "Navigation")
	assert.NotContains(t, text, "var x")
}

func TestExtract_OpenGraphTitleFallback(t *testing.T) {
	title, text, err := Extract(`<html><head><meta property="og:title" content="OG Title"></head><body><p>Body text</p></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "OG Title", title)
	assert.Equal(t, "Body text", text)
}

func TestHTTPRenderer_HTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	page, err := NewHTTPRenderer(nil, "netmirror-test").Render(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Mirror Home", page.Title)
	assert.Contains(t, page.ContentType, "text/html")
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Text, "Welcome")
}

func TestHTTPRenderer_NonHTMLSkipsExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hello":"world"}`))
	}))
	defer server.Close()

	page, err := NewHTTPRenderer(nil, "").Render(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "application/json", page.ContentType)
	assert.Empty(t, page.HTML)
	assert.Empty(t, page.Title)
}

func TestHTTPRenderer_StatusError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	page, err := NewHTTPRenderer(nil, "").Render(context.Background(), server.URL)
	require.Error(t, err)
	require.NotNil(t, page)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)

	var renderErr *Error
	assert.ErrorAs(t, err, &renderErr)
}

func TestHTTPRenderer_MalformedDestination(t *testing.T) {
	_, err := NewHTTPRenderer(&http.Client{Timeout: time.Second}, "").Render(context.Background(), "javascript:alert(1)")
	require.Error(t, err)

	var renderErr *Error
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "javascript:alert(1)", renderErr.URL)
}

func TestNop(t *testing.T) {
	page, err := Nop{}.Render(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Equal(t, "anything at all", page.URL)
}

func TestBrowserRenderer(t *testing.T) {
	if os.Getenv("NETMIRROR_BROWSER_TESTS") == "" {
		t.Skip("set NETMIRROR_BROWSER_TESTS=1 to run headless Chrome tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	page, err := NewBrowserRenderer(BrowserOptions{Timeout: 20 * time.Second}).Render(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Mirror Home", page.Title)
}
