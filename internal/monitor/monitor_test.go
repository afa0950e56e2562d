package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dropwatch/internal/checkout"
	"dropwatch/internal/config"
	"dropwatch/internal/flow"
	"dropwatch/internal/page"
	"dropwatch/internal/page/htmlpage"
)

const (
	upcoming = "https://shop.example/launch/upcoming"
	inStock  = "https://shop.example/launch/in-stock"
	listing  = `<html><head><title>Launch</title></head><body><h1>Launch</h1></body></html>`
)

func TestExpandURLs(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{upcoming, []string{upcoming, inStock}},
		{inStock, []string{inStock, upcoming}},
		{"https://shop.example/launch/upcoming?s=aj1", []string{"https://shop.example/launch/upcoming?s=aj1", "https://shop.example/launch/in-stock?s=aj1"}},
		{"https://shop.example/p/aj1", []string{"https://shop.example/p/aj1"}},
	}
	for _, test := range tests {
		got := ExpandURLs(test.input)
		if strings.Join(got, " ") != strings.Join(test.expected, " ") {
			t.Errorf("ExpandURLs(%q) = %v, expected %v", test.input, got, test.expected)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("navigation failed: net::ERR_CONNECTION_RESET"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("context deadline exceeded"), true},
		{timeoutErr{}, true},
		{errors.New("unexpected EOF"), true},
		{errors.New("htmlpage: navigate x: no route"), false},
		{page.ErrDriverLost, false},
	}
	for _, test := range tests {
		if got := isNetworkError(test.err); got != test.expected {
			t.Errorf("isNetworkError(%v) = %v, expected %v", test.err, got, test.expected)
		}
	}
}

func TestRobotsGate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("User-agent: *\nDisallow: /private\n\nUser-agent: dropwatch\nDisallow: /launch\n"))
	}))
	defer srv.Close()

	g := NewRobotsGate(srv.Client(), nil)
	ctx := context.Background()
	if !g.Allowed(ctx, srv.URL+"/launch/upcoming", "*") {
		t.Error("Expected /launch to be allowed for *")
	}
	if g.Allowed(ctx, srv.URL+"/private/orders", "*") {
		t.Error("Expected /private to be disallowed")
	}
	if g.Allowed(ctx, srv.URL+"/launch/upcoming", "dropwatch") {
		t.Error("Expected /launch to be disallowed for dropwatch")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("Expected robots.txt fetched once, got %d", n)
	}
}

func TestRobotsGateFailsOpen(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	g := NewRobotsGate(&http.Client{Timeout: time.Second}, nil)
	ctx := context.Background()
	if !g.Allowed(ctx, broken.URL+"/launch", "*") {
		t.Error("Expected a 500 robots.txt to allow")
	}
	if !g.Allowed(ctx, closedURL+"/launch", "*") {
		t.Error("Expected an unreachable robots.txt to allow")
	}
	if !g.Allowed(ctx, "not a url", "*") {
		t.Error("Expected an unparsable URL to allow")
	}
}

// fakeBuyer returns scripted results per call.
type fakeBuyer struct {
	urls    []string
	results func(call int, url string) (bool, error)
	onCall  func(call int)
}

func (b *fakeBuyer) FindProductAndBuy(ctx context.Context, doc page.Document, name, size string, fields checkout.FieldMap, s *flow.Session) (bool, error) {
	u, _ := doc.URL()
	b.urls = append(b.urls, u)
	call := len(b.urls)
	if b.onCall != nil {
		b.onCall(call)
	}
	ok, err := false, error(nil)
	if b.results != nil {
		ok, err = b.results(call, u)
	}
	if ok {
		s.MarkInitiated()
	}
	return ok, err
}

type recorder struct {
	sleeps []time.Duration
	// cancelAfter cancels the run after this many sleeps when set
	cancelAfter int
	cancel      context.CancelFunc
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	if r.cancelAfter > 0 && len(r.sleeps) >= r.cancelAfter && r.cancel != nil {
		r.cancel()
	}
	return ctx.Err()
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.WaitForPage = 0
	cfg.RetryDelay = 5
	cfg.RetryJitter = 0
	cfg.PostPurchaseIdle = 15
	cfg.StopOnSuccess = true
	return cfg
}

func newMonitor(cfg *config.Config, nav page.Navigator, buyer Buyer) (*Monitor, *recorder) {
	m := New(cfg, nil, nav, buyer)
	r := &recorder{}
	m.sleep = r.sleep
	m.challenges.Sleep = r.sleep
	return m, r
}

func newDoc(routes ...string) *htmlpage.Document {
	doc := htmlpage.MustNew("about:blank", "<body></body>")
	for _, u := range routes {
		doc.Route(u, listing)
	}
	return doc
}

func TestRunStopsOnSuccess(t *testing.T) {
	doc := newDoc(upcoming, inStock)
	buyer := &fakeBuyer{results: func(call int, u string) (bool, error) { return u == inStock, nil }}
	m, _ := newMonitor(testConfig(), doc, buyer)

	ok, err := m.Run(context.Background(), Target{URL: upcoming, Name: "Air Jordan 1"}, nil)
	if err != nil || !ok {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	if strings.Join(buyer.urls, " ") != upcoming+" "+inStock {
		t.Errorf("Expected primary then alternate scans, got %v", buyer.urls)
	}
}

func TestRunRetriesWithDelayAndReload(t *testing.T) {
	doc := newDoc("https://shop.example/p/aj1")
	reloads := 0
	doc.OnNavigate = func(d *htmlpage.Document) { reloads++ }

	buyer := &fakeBuyer{results: func(call int, u string) (bool, error) { return call == 3, nil }}
	m, r := newMonitor(testConfig(), doc, buyer)

	ok, err := m.Run(context.Background(), Target{URL: "https://shop.example/p/aj1", Name: "Air Jordan 1"}, nil)
	if err != nil || !ok {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	if len(buyer.urls) != 3 {
		t.Errorf("Expected 3 scans, got %d", len(buyer.urls))
	}
	// initial navigation plus two reloads
	if reloads != 3 {
		t.Errorf("Expected 3 page loads, got %d", reloads)
	}
	retries := 0
	for _, d := range r.sleeps {
		if d == 5*time.Second {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("Expected two 5s retry delays, got sleeps %v", r.sleeps)
	}
}

func TestRunSkipsFailingAlternate(t *testing.T) {
	doc := newDoc(upcoming) // no route for the in-stock variant
	ctx, cancel := context.WithCancel(context.Background())
	buyer := &fakeBuyer{onCall: func(call int) {
		if call == 2 {
			cancel()
		}
	}}
	m, _ := newMonitor(testConfig(), doc, buyer)

	ok, err := m.Run(ctx, Target{URL: upcoming, Name: "Air Jordan 1"}, nil)
	if ok || err != nil {
		t.Fatalf("Expected (false, nil) after cancellation, got (%v, %v)", ok, err)
	}
	for _, u := range buyer.urls {
		if u != upcoming {
			t.Errorf("Scanned %q although navigation failed", u)
		}
	}
}

func TestRunInitialNavigationFailure(t *testing.T) {
	doc := newDoc()
	buyer := &fakeBuyer{}
	m, _ := newMonitor(testConfig(), doc, buyer)

	ok, err := m.Run(context.Background(), Target{URL: "https://shop.example/p/aj1"}, nil)
	if ok || err == nil {
		t.Fatalf("Expected (false, error), got (%v, %v)", ok, err)
	}
	if len(buyer.urls) != 0 {
		t.Error("Buyer must not run without a page")
	}
}

func TestRunKeepsInitiatedStateWithoutStop(t *testing.T) {
	const checkoutURL = "https://shop.example/checkout"
	doc := newDoc(upcoming, inStock)
	doc.Route(checkoutURL, `<html><head><title>Checkout</title></head><body><h1>Checkout</h1></body></html>`)
	cfg := testConfig()
	cfg.StopOnSuccess = false

	buyer := &fakeBuyer{results: func(call int, u string) (bool, error) {
		if err := doc.Navigate(context.Background(), checkoutURL); err != nil {
			t.Fatalf("Failed to open checkout: %v", err)
		}
		return true, nil
	}}
	m, r := newMonitor(cfg, doc, buyer)
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.cancelAfter = 4

	ok, err := m.Run(ctx, Target{URL: upcoming}, nil)
	if err != nil || !ok {
		t.Fatalf("Expected (true, nil) on interruption after a purchase, got (%v, %v)", ok, err)
	}
	if len(buyer.urls) != 1 {
		t.Errorf("Expected no rescans after initiation, got %v", buyer.urls)
	}
	if u, _ := doc.URL(); u != checkoutURL {
		t.Errorf("Expected the checkout page to stay open, got %s", u)
	}
	idle := 0
	for _, d := range r.sleeps {
		if d == 15*time.Second {
			idle++
		}
	}
	if idle < 2 {
		t.Errorf("Expected repeated post-purchase idling, got sleeps %v", r.sleeps)
	}
}

func TestRunDriverLost(t *testing.T) {
	doc := newDoc("https://shop.example/p/aj1")
	buyer := &fakeBuyer{results: func(call int, u string) (bool, error) { return false, page.ErrDriverLost }}
	m, _ := newMonitor(testConfig(), doc, buyer)

	ok, err := m.Run(context.Background(), Target{URL: "https://shop.example/p/aj1"}, nil)
	if ok || !errors.Is(err, page.ErrDriverLost) {
		t.Fatalf("Expected (false, ErrDriverLost), got (%v, %v)", ok, err)
	}
}

func TestRunBlockedByRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	cfg.BlockOnRobots = true
	doc := newDoc(srv.URL + "/p/aj1")
	buyer := &fakeBuyer{}
	m, _ := newMonitor(cfg, doc, buyer)
	m.SetRobotsGate(NewRobotsGate(srv.Client(), nil))

	ok, err := m.Run(context.Background(), Target{URL: srv.URL + "/p/aj1"}, nil)
	if ok || err != nil {
		t.Fatalf("Expected (false, nil), got (%v, %v)", ok, err)
	}
	if len(buyer.urls) != 0 {
		t.Error("Expected no scan when robots.txt disallows")
	}
}

func TestRunPausesOnChallenge(t *testing.T) {
	doc := htmlpage.MustNew("about:blank", "<body></body>")
	doc.Route("https://shop.example/p/aj1", `<html><head><title>Just a moment...</title></head><body></body></html>`)
	buyer := &fakeBuyer{results: func(call int, u string) (bool, error) { return true, nil }}
	m, r := newMonitor(testConfig(), doc, buyer)

	if ok, err := m.Run(context.Background(), Target{URL: "https://shop.example/p/aj1"}, nil); !ok || err != nil {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	paused := false
	for _, d := range r.sleeps {
		if d == 60*time.Second {
			paused = true
		}
	}
	if !paused {
		t.Errorf("Expected a challenge pause, got sleeps %v", r.sleeps)
	}
}

// flakyNav fails the first navigations with a network error.
type flakyNav struct {
	doc      *htmlpage.Document
	failures int
	attempts int
}

func (f *flakyNav) Document() page.Document { return f.doc }

func (f *flakyNav) Reload(ctx context.Context) error { return f.doc.Reload(ctx) }

func (f *flakyNav) Navigate(ctx context.Context, url string) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("navigation failed: net::ERR_CONNECTION_RESET")
	}
	return f.doc.Navigate(ctx, url)
}

var _ page.Navigator = (*flakyNav)(nil)

func TestNavigateRetriesNetworkErrors(t *testing.T) {
	nav := &flakyNav{doc: newDoc("https://shop.example/p/aj1"), failures: 2}
	m, _ := newMonitor(testConfig(), nav, &fakeBuyer{})
	if err := m.navigate(context.Background(), "https://shop.example/p/aj1"); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if nav.attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", nav.attempts)
	}

	nav = &flakyNav{doc: newDoc("https://shop.example/p/aj1"), failures: 5}
	m, _ = newMonitor(testConfig(), nav, &fakeBuyer{})
	if err := m.navigate(context.Background(), "https://shop.example/p/aj1"); err == nil {
		t.Error("Expected failure after bounded retries")
	}
	if nav.attempts != navAttempts {
		t.Errorf("Expected %d attempts, got %d", navAttempts, nav.attempts)
	}
}
