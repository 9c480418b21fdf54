package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vientofactory/lawcast-backend/internal/notice"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

const (
	userAgent  = "lawcast-crawler/1.0"
	fetchTimeout = 15 * time.Second
	maxRetries = 3
)

// Crawler scrapes the upstream legislative-notice index. Config is fixed
// per the crawl scheduler's contract: a stable user-agent, a 15s timeout,
// and up to 3 retries.
type Crawler struct {
	indexURL string
	client   *http.Client
	log      logx.Logger
}

func New(indexURL string, log logx.Logger) *Crawler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Crawler{
		indexURL: indexURL,
		client:   &http.Client{Timeout: fetchTimeout},
		log:      log,
	}
}

// Crawl satisfies notice.Crawler. It retries transport failures up to
// maxRetries times; a failure on the final attempt is returned wrapped, and
// the crawl scheduler treats it as recoverable.
func (c *Crawler) Crawl(ctx context.Context) ([]notice.Notice, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		notices, err := c.fetchOnce(ctx)
		if err == nil {
			return notices, nil
		}
		lastErr = err
		c.log.Debug("crawl attempt failed", logx.Int("attempt", attempt), logx.Err(err))
		if attempt <= maxRetries {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("crawler: exhausted retries: %w", lastErr)
}

func (c *Crawler) fetchOnce(ctx context.Context) ([]notice.Notice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	return parseRows(doc), nil
}

// parseRows extracts one Notice per table row, tolerating rows that are
// missing a numeric identifier.
func parseRows(doc *goquery.Document) []notice.Notice {
	var out []notice.Notice
	doc.Find("table.notice-list tbody tr").Each(func(i int, row *goquery.Selection) {
		numText := strings.TrimSpace(row.Find("td.num").First().Text())
		num, err := strconv.ParseInt(numText, 10, 64)
		if err != nil {
			return
		}
		link, _ := row.Find("td.subject a").First().Attr("href")
		out = append(out, notice.Notice{
			Num:              num,
			Subject:          strings.TrimSpace(row.Find("td.subject").First().Text()),
			ProposerCategory: strings.TrimSpace(row.Find("td.category").First().Text()),
			Committee:        strings.TrimSpace(row.Find("td.committee").First().Text()),
			Link:             link,
		})
	})
	return out
}
