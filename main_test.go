package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dropwatch/internal/config"
	"dropwatch/internal/logger"
)

func productsConfig(t *testing.T, entries ...config.Product) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProductsFile = filepath.Join(t.TempDir(), "products.txt")
	for _, p := range entries {
		if err := config.AppendProduct(cfg.ProductsFile, p); err != nil {
			t.Fatalf("Failed to write products: %v", err)
		}
	}
	return cfg
}

func TestResolveTargetFromFlags(t *testing.T) {
	cfg := productsConfig(t)

	got, err := resolveTarget(cfg, "https://shop.example/launch", "Air Jordan 1", "10", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.URL != "https://shop.example/launch" || got.Name != "Air Jordan 1" || got.Size != "10" {
		t.Errorf("Unexpected target %+v", got)
	}

	if _, err := resolveTarget(cfg, "https://shop.example/launch", "", "", 1); err == nil {
		t.Error("Expected error for -url without -name")
	}
}

func TestResolveTargetFromProductsFile(t *testing.T) {
	cfg := productsConfig(t,
		config.Product{URL: "https://shop.example/a", Name: "Dunk Low", Size: "9"},
		config.Product{URL: "https://shop.example/b", Name: "Air Max 90"},
	)

	tests := []struct {
		name      string
		flagName  string
		flagSize  string
		idx       int
		wantURL   string
		wantName  string
		wantSize  string
		wantError bool
	}{
		{name: "first entry", idx: 1, wantURL: "https://shop.example/a", wantName: "Dunk Low", wantSize: "9"},
		{name: "second entry", idx: 2, wantURL: "https://shop.example/b", wantName: "Air Max 90"},
		{name: "size override", idx: 2, flagSize: "11", wantURL: "https://shop.example/b", wantName: "Air Max 90", wantSize: "11"},
		{name: "name override", idx: 1, flagName: "Dunk Low Retro", wantURL: "https://shop.example/a", wantName: "Dunk Low Retro", wantSize: "9"},
		{name: "zero index", idx: 0, wantError: true},
		{name: "past the end", idx: 3, wantError: true},
	}

	for _, test := range tests {
		got, err := resolveTarget(cfg, "", test.flagName, test.flagSize, test.idx)
		if test.wantError {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if got.URL != test.wantURL || got.Name != test.wantName || got.Size != test.wantSize {
			t.Errorf("%s: expected %s|%s|%s, got %+v", test.name, test.wantURL, test.wantName, test.wantSize, got)
		}
	}
}

func TestResolveTargetNoProducts(t *testing.T) {
	cfg := productsConfig(t)
	if _, err := resolveTarget(cfg, "", "", "", 1); err == nil {
		t.Error("Expected error when nothing is configured")
	}
}

func TestWaitForDrop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SyncClock = false

	if err := waitForDrop(context.Background(), cfg, logger.Nop()); err != nil {
		t.Errorf("Expected no wait without a drop time, got %v", err)
	}

	cfg.DropTime = "not a time"
	if err := waitForDrop(context.Background(), cfg, logger.Nop()); err == nil {
		t.Error("Expected error for an invalid drop time")
	}

	cfg.DropTime = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	start := time.Now()
	if err := waitForDrop(context.Background(), cfg, logger.Nop()); err != nil {
		t.Errorf("Expected immediate start for a past drop, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Past drop should not wait")
	}
}

func TestWaitForDropCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SyncClock = false
	cfg.StartBeforeDropSeconds = 0
	cfg.DropTime = time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := waitForDrop(ctx, cfg, logger.Nop()); err == nil {
		t.Error("Expected cancellation error")
	}
}

const inspectPage = `<html><head><title>Launch Calendar</title></head><body>
<div class="grid">
<div class="card"><img src="aj1.jpg"><h3>Air Jordan 1 Retro High OG</h3><p>$180</p><button>Add to Bag</button></div>
<div class="card"><img src="dunk.jpg"><h3>Nike Dunk Low</h3><p>$110</p><button>Notify Me</button></div>
</div>
<a href="/cart">Checkout</a>
</body></html>`

func TestRunInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.html")
	if err := os.WriteFile(path, []byte(inspectPage), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInspect(&out, path, "Air Jordan 1 Retro High OG", config.DefaultConfig()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	report := out.String()

	for _, want := range []string{
		"Page:      Launch Calendar",
		"Challenge: none",
		"(match)",
		"Buy (2):",
		"add to bag",
		"Checkout (1):",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, report)
		}
	}
	if strings.Contains(report, "notify me") {
		t.Errorf("Notify button should not be listed as a CTA:\n%s", report)
	}
}

func TestRunInspectBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.html")
	if err := os.WriteFile(path, []byte(inspectPage), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInspect(&out, path, "Yeezy Boost 350 V2 Zebra", config.DefaultConfig()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report := out.String(); !strings.Contains(report, "(below threshold)") {
		t.Errorf("Expected the best card below threshold, got:\n%s", report)
	}
}

func TestRunInspectMissingFile(t *testing.T) {
	var out bytes.Buffer
	if err := runInspect(&out, filepath.Join(t.TempDir(), "nope.html"), "", config.DefaultConfig()); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("  Air Jordan\n\t$180 "); got != "Air Jordan $180" {
		t.Errorf("Expected collapsed whitespace, got %q", got)
	}
	long := strings.Repeat("é", 150)
	if got := oneLine(long); len([]rune(got)) != 103 {
		t.Errorf("Expected 100 runes plus ellipsis, got %d", len([]rune(got)))
	}
}

func TestUserDataDirCreated(t *testing.T) {
	dir := config.UserDataDir()
	info, err := os.Stat(dir)
	if err != nil {
		t.Logf("Note: User data directory doesn't exist: %v", err)
		return
	}
	if !info.IsDir() {
		t.Errorf("Expected %s to be a directory", dir)
	}
}
