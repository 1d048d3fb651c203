package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"net/http"
	"time"

	"firefeed/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; FireFeed/1.0; +https://firefeed.net)"

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Language string    `xml:"language"`
		Items    []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Enclosure   struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

// SourceConfig tunes the fetch collaborator shared by all feeds.
type SourceConfig struct {
	ProxyURL        string
	MaxItemsPerFeed int
	RatePerSecond   float64
	UserAgent       string
}

// Source fetches RSS feeds and produces NormalizedItems. It is the external
// fetch/normalize collaborator of the pipeline: the core never sees raw feed
// markup.
type Source struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        SourceConfig
	logger     *zap.Logger
}

func NewSource(cfg SourceConfig, logger *zap.Logger) (*Source, error) {
	if cfg.MaxItemsPerFeed <= 0 {
		cfg.MaxItemsPerFeed = 5
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	if cfg.ProxyURL != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.ProxyURL, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return &Source{
		httpClient: &http.Client{Transport: transport},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Fetch downloads one feed and returns its items in feed order, normalized
// and capped at MaxItemsPerFeed. The caller bounds the call with a context
// timeout; a timeout fails only this feed.
func (s *Source) Fetch(ctx context.Context, fc config.Feed) ([]NormalizedItem, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", fc.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", fc.URL, resp.StatusCode)
	}

	var doc rssDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", fc.URL, err)
	}

	feedLang := fc.Language
	if feedLang == "" && doc.Channel.Language != "" {
		feedLang = doc.Channel.Language
		if len(feedLang) > 2 {
			feedLang = feedLang[:2]
		}
	}

	items := make([]NormalizedItem, 0, s.cfg.MaxItemsPerFeed)
	for _, raw := range doc.Channel.Items {
		if len(items) >= s.cfg.MaxItemsPerFeed {
			break
		}
		item, ok := s.normalize(fc, feedLang, raw)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	s.logger.Info("feed fetched",
		zap.String("feed", fc.URL),
		zap.Int("items", len(items)))

	return items, nil
}

func (s *Source) normalize(fc config.Feed, feedLang string, raw rssItem) (NormalizedItem, bool) {
	title := CleanHTML(raw.Title)
	body := CleanHTML(raw.Description)
	if title == "" && body == "" {
		return NormalizedItem{}, false
	}

	lang := feedLang
	if lang == "" {
		lang = DetectLanguage(title + " " + body)
	}

	media := extractMediaFromHTML(raw.Description)
	if raw.Enclosure.URL != "" {
		if mt, ok := mediaTypeFromURL(raw.Enclosure.URL, raw.Enclosure.Type); ok {
			media = append(media, MediaRef{URL: raw.Enclosure.URL, Type: mt})
		}
	}

	published := time.Now().UTC()
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, raw.PubDate); err == nil {
			published = t.UTC()
			break
		}
	}

	guid := raw.GUID
	if guid == "" {
		guid = raw.Link
	}
	if guid == "" {
		guid = title
	}

	return NormalizedItem{
		ID:          ItemID(fc.URL, guid),
		SourceID:    fc.Source,
		Language:    lang,
		Title:       title,
		Body:        body,
		Link:        raw.Link,
		PublishedAt: published,
		Media:       media,
	}, true
}

// ItemID derives a stable identifier from the feed URL and the item's guid.
// The same entry seen on a later pass maps to the same id.
func ItemID(feedURL, guid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL+"|"+guid)).String()
}
