package webpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Quarterly Report</title></head>
<body>
<article>
<h1>Quarterly Report</h1>
<p>Revenue grew twelve percent over the previous quarter, driven by strong
subscription renewals across the enterprise segment. Operating costs stayed
flat while the engineering organization expanded into two new regions.</p>
<p>The board approved an increased investment budget for the retrieval
platform, citing sustained customer demand for document search.</p>
</article>
</body>
</html>`

func TestFetchExtractsArticleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	article, err := Fetch(context.Background(), srv.Client(), srv.URL, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", article.Title)
	assert.Contains(t, article.Text, "Revenue grew twelve percent")
	assert.Contains(t, article.Text, "retrieval")
}

func TestFetchRejectsBadURL(t *testing.T) {
	client := &http.Client{}
	for _, raw := range []string{"", "ftp://example.com/x", "not a url", "file:///etc/passwd"} {
		_, err := Fetch(context.Background(), client, raw, 1<<20)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestFetchRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL, 1<<20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", 4096) + "</body></html>"))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchHonorsContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Fetch(ctx, srv.Client(), srv.URL, 1<<20)
	assert.Error(t, err)
}
