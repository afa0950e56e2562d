package monitor

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"dropwatch/internal/logger"
)

// robotsMaxBytes caps how much of a robots.txt is read.
const robotsMaxBytes = 512 << 10

// RobotsGate answers whether robots.txt permits fetching a URL. It fails
// open: an unreachable or erroring robots.txt allows everything.
type RobotsGate struct {
	client *http.Client
	log    *logger.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func NewRobotsGate(client *http.Client, log *logger.Logger) *RobotsGate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RobotsGate{client: client, log: log, cache: make(map[string]*robotstxt.RobotsData)}
}

// Allowed reports whether agent may fetch raw.
func (g *RobotsGate) Allowed(ctx context.Context, raw, agent string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return true
	}
	data := g.rules(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, agent)
}

func (g *RobotsGate) rules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.cache[origin]
	g.mu.Unlock()
	if ok {
		return data
	}

	data = g.fetch(ctx, origin)
	g.mu.Lock()
	g.cache[origin] = data
	g.mu.Unlock()
	return data
}

func (g *RobotsGate) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug().Err(err).Str("origin", origin).Msg("robots.txt unreachable, allowing")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		g.log.Debug().Int("status", resp.StatusCode).Str("origin", origin).Msg("robots.txt server error, allowing")
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.log.Debug().Err(err).Str("origin", origin).Msg("robots.txt unparsable, allowing")
		return nil
	}
	return data
}
