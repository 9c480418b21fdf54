package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

const sampleIndex = `<html><body><table class="notice-list"><tbody>
<tr><td class="num">101</td><td class="subject"><a href="/n/101">Bill A</a></td><td class="category">Government</td><td class="committee">Finance</td></tr>
<tr><td class="num">100</td><td class="subject"><a href="/n/100">Bill B</a></td><td class="category">Member</td><td class="committee">Health</td></tr>
</tbody></table></body></html>`

func TestCrawlParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent: %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(sampleIndex))
	}))
	defer srv.Close()

	c := New(srv.URL, logx.Logger{})
	notices, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(notices))
	}
	if notices[0].Num != 101 || notices[0].Subject != "Bill A" {
		t.Fatalf("unexpected first notice: %+v", notices[0])
	}
}

func TestCrawlRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, logx.Logger{})
	if _, err := c.Crawl(context.Background()); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, calls)
	}
}
