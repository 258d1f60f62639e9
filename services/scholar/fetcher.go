package scholar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/net/html"

	"github.com/nexscholar/nexscholar/core/scholar"
)

const (
	defaultBaseURL = "https://scholar.google.com"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	metricsTableID = "gsc_rsb_st"
)

var ErrMetricsNotFound = errors.New("metrics table not found on the profile page")

// Fetcher reads the metrics off the public Google Scholar profile page.
type Fetcher struct {
	baseURL string
	http    *rest.Client
}

var _ scholar.Fetcher = (*Fetcher)(nil)

func NewFetcher() *Fetcher {
	return &Fetcher{
		baseURL: defaultBaseURL,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: 30 * time.Second}},
	}
}

func (f *Fetcher) WithBaseURL(baseURL string) *Fetcher {
	f.baseURL = strings.TrimRight(baseURL, "/")
	return f
}

// UserID extracts the author ID from a Scholar profile URL on any scholar.google.* host.
func UserID(profileURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil {
		return "", errors.Wrap(err, "parsing url")
	}
	if !strings.HasPrefix(strings.ToLower(u.Hostname()), "scholar.google.") {
		return "", fmt.Errorf("%q is not a Google Scholar url", profileURL)
	}
	id := u.Query().Get("user")
	if id == "" {
		return "", fmt.Errorf("%q has no user parameter", profileURL)
	}
	return id, nil
}

func (f *Fetcher) FetchMetrics(ctx context.Context, profileURL string) (scholar.Metrics, error) {
	userID, err := UserID(profileURL)
	if err != nil {
		return scholar.Metrics{}, err
	}
	resp, err := f.http.SendWithContext(ctx, rest.Request{
		Method:      rest.Get,
		BaseURL:     f.baseURL + "/citations",
		Headers:     map[string]string{"User-Agent": userAgent, "Accept-Language": "en"},
		QueryParams: map[string]string{"user": userID, "hl": "en"},
	})
	if err != nil {
		return scholar.Metrics{}, errors.Wrap(err, "sending request")
	}
	if resp.StatusCode != http.StatusOK {
		return scholar.Metrics{}, fmt.Errorf("google scholar: %d", resp.StatusCode)
	}
	return ParseMetrics(strings.NewReader(resp.Body))
}

// ParseMetrics reads the "All" column of the citation indices table.
func ParseMetrics(r io.Reader) (scholar.Metrics, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return scholar.Metrics{}, errors.Wrap(err, "parsing html")
	}
	table := find(doc, func(n *html.Node) bool { return attr(n, "id") == metricsTableID })
	if table == nil {
		return scholar.Metrics{}, ErrMetricsNotFound
	}

	var m scholar.Metrics
	var found int
	for _, row := range findAll(table, func(n *html.Node) bool { return isElement(n, "tr") }) {
		cells := findAll(row, func(n *html.Node) bool { return isElement(n, "td") })
		if len(cells) < 2 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(text(cells[0])))
		value, err := parseCount(text(cells[1]))
		if err != nil {
			return scholar.Metrics{}, errors.Wrapf(err, "reading %s", label)
		}
		switch label {
		case "citations":
			m.Citations = value
		case "h-index":
			m.HIndex = value
		case "i10-index":
			m.I10Index = value
		default:
			continue
		}
		found++
	}
	if found == 0 {
		return scholar.Metrics{}, ErrMetricsNotFound
	}
	return m, nil
}

func parseCount(s string) (int, error) {
	s = strings.NewReplacer(",", "", ".", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var nodes []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			nodes = append(nodes, c)
			continue
		}
		nodes = append(nodes, findAll(c, match)...)
	}
	return nodes
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
