package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"dropwatch/internal/challenge"
	"dropwatch/internal/checkout"
	"dropwatch/internal/config"
	"dropwatch/internal/cta"
	"dropwatch/internal/logger"
	"dropwatch/internal/monitor"
	"dropwatch/internal/page"
	"dropwatch/internal/page/htmlpage"
	"dropwatch/internal/product"
	"dropwatch/internal/schedule"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	url := flag.String("url", "", "Listing or product URL to monitor (overrides the products file)")
	name := flag.String("name", "", "Product name to look for")
	size := flag.String("size", "", "Size to select, if the product has sizes")
	productIdx := flag.Int("product", 1, "Entry of the products file to monitor (1-based)")
	buyerPath := flag.String("buyer", "", "Buyer details file (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Test mode: stop before the final submit")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	dropTime := flag.String("drop-time", "", "Drop time, e.g. \"2025-01-15 16:00\" (UTC); monitoring starts shortly before")
	inspect := flag.String("inspect", "", "Analyse a saved HTML page offline and exit")
	flag.Parse()

	if err := InitLocale(); err != nil {
		log.Printf("Warning: Locale initialization failed, using default English: %v", err)
	}

	checkUserDataDirPermissions()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *debug {
		cfg.DebugMode = true
	}
	if *buyerPath != "" {
		cfg.BuyerFile = *buyerPath
	}
	if *dropTime != "" {
		cfg.DropTime = *dropTime
	}

	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Debug: cfg.DebugMode, File: cfg.LogFile}); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()
	lg := logger.New("main")

	if *inspect != "" {
		if err := runInspect(os.Stdout, *inspect, *name, cfg); err != nil {
			log.Fatalf("Inspect failed: %v", err)
		}
		return
	}

	target, err := resolveTarget(cfg, *url, *name, *size, *productIdx)
	if err != nil {
		log.Fatal(err)
	}
	raw, err := config.LoadBuyer(cfg.BuyerFile)
	if err != nil {
		log.Fatalf("Failed to load buyer details: %v", err)
	}
	fields := checkout.NewFieldMap(raw)

	printBanner(cfg, target, len(fields))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	automation := NewAutomation(cfg, logger.New("browser"))
	hold := true
	defer func() {
		// a second interrupt at the prompt ends the process
		stop()
		if hold {
			automation.holdOpen(os.Stdin)
		}
		automation.Close()
	}()

	if err := automation.setupBrowser(cancel); err != nil {
		log.Fatalf("Failed to setup browser: %v", err)
	}
	if err := automation.waitForLogin(ctx, os.Stdin); err != nil {
		if errors.Is(err, errUserCanceled) {
			hold = false
			return
		}
		log.Fatalf("Failed to wait for login: %v", err)
	}

	if err := waitForDrop(ctx, cfg, lg); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Fatalf("Drop scheduling failed: %v", err)
	}

	initiator := product.NewInitiator(cfg, logger.New("product"), nil)
	m := monitor.New(cfg, logger.New("monitor"), automation.tab, initiator)
	initiated, err := m.Run(ctx, target, fields)
	if err != nil {
		lg.Error().Err(err).Msg("monitoring ended with an error")
	}

	fmt.Println()
	if initiated {
		fmt.Println(T("run_purchase_initiated"))
	} else {
		fmt.Println(T("run_no_purchase"))
	}
}

// resolveTarget picks the monitored product: -url/-name/-size when a URL is
// given, otherwise the idx-th products file entry with flag overrides.
func resolveTarget(cfg *config.Config, url, name, size string, idx int) (monitor.Target, error) {
	if url != "" {
		if name == "" {
			return monitor.Target{}, fmt.Errorf("-url needs -name")
		}
		return monitor.Target{URL: url, Name: name, Size: size}, nil
	}

	products, err := config.LoadProducts(cfg.ProductsFile)
	if err != nil {
		return monitor.Target{}, fmt.Errorf("failed to load products: %w", err)
	}
	if len(products) == 0 {
		return monitor.Target{}, fmt.Errorf("no product specified. Use -url and -name or add `URL|Name|Size` lines to %s", cfg.ProductsFile)
	}
	if idx < 1 || idx > len(products) {
		return monitor.Target{}, fmt.Errorf("-product %d out of range (1-%d)", idx, len(products))
	}
	p := products[idx-1]
	t := monitor.Target{URL: p.URL, Name: p.Name, Size: p.Size}
	if name != "" {
		t.Name = name
	}
	if size != "" {
		t.Size = size
	}
	return t, nil
}

// waitForDrop sleeps until start_before_drop_seconds ahead of drop_time.
func waitForDrop(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	if cfg.DropTime == "" {
		return nil
	}
	drop, err := schedule.ParseDropTime(cfg.DropTime)
	if err != nil {
		return err
	}
	clock := schedule.NewClock(nil, logger.New("clock"))
	if cfg.SyncClock {
		if err := clock.Sync(ctx); err != nil {
			lg.Warn().Err(err).Msg("time sync failed, using local clock")
		}
	}

	start := drop.Add(-time.Duration(cfg.StartBeforeDropSeconds) * time.Second)
	if !clock.Now().Before(start) {
		lg.Info().Time("drop", drop).Msg("drop window already open")
		return nil
	}
	fmt.Printf(T("drop_waiting")+"\n", drop.Format(time.RFC3339), time.Until(start).Round(time.Second))
	return schedule.WaitUntil(ctx, clock, start, lg)
}

func printBanner(cfg *config.Config, t monitor.Target, fieldCount int) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                     Dropwatch                            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf(T("banner_target")+"\n", t.URL)
	fmt.Printf(T("banner_product")+"\n", t.Name)
	if t.Size != "" {
		fmt.Printf(T("banner_size")+"\n", t.Size)
	}
	fmt.Printf(T("banner_buyer_fields")+"\n", fieldCount)
	fmt.Printf(T("banner_profile")+"\n", cfg.BrowserProfilePath)
	if cfg.DryRun {
		fmt.Println(T("dry_run_mode"))
	}
	if cfg.DebugMode {
		fmt.Println(T("debug_mode"))
	}
	if cfg.DropTime != "" {
		fmt.Printf(T("banner_drop_time")+"\n", cfg.DropTime, cfg.StartBeforeDropSeconds)
	}
	fmt.Println()
}

// runInspect loads a saved page and reports what a scan would see on it.
func runInspect(w io.Writer, path, name string, cfg *config.Config) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	doc, err := htmlpage.New("file://"+filepath.ToSlash(abs), string(src))
	if err != nil {
		return err
	}

	title, _ := doc.Title()
	fmt.Fprintf(w, "Page:      %s\n", title)
	fmt.Fprintf(w, "Challenge: %s\n", challenge.Detect(doc))
	fmt.Fprintf(w, "Blocks:    %d candidate(s)\n", len(product.ExtractCandidates(doc, cfg.ScanLimit)))

	if name != "" {
		m, err := product.Locate(context.Background(), doc, name, cfg.MinMatchScore, 1, 0, cfg.ScanLimit)
		if err != nil {
			return err
		}
		if m != nil {
			verdict := "below threshold"
			if m.Score >= cfg.MinMatchScore {
				verdict = "match"
			}
			fmt.Fprintf(w, "Best:      %.2f (%s) %q\n", m.Score, verdict, oneLine(m.Text))
		} else {
			fmt.Fprintln(w, "Best:      none")
		}
	}

	listCTAs(w, "Buy", cta.BuyCTAs(doc))
	listCTAs(w, "Checkout", cta.CheckoutCTAs(doc))
	submits := cta.SubmitCandidates(doc)
	fmt.Fprintf(w, "Submit (%d):\n", len(submits))
	for _, r := range submits {
		fmt.Fprintf(w, "  %3d  %s\n", r.Score, oneLine(page.Describe(r.Element)))
	}
	return nil
}

func listCTAs(w io.Writer, label string, els []page.Element) {
	fmt.Fprintf(w, "%s (%d):\n", label, len(els))
	for _, el := range els {
		fmt.Fprintf(w, "  - %s\n", oneLine(page.Describe(el)))
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return s
}

// Store init error for later display (after locale is loaded)
var initUserDataDirError error

func init() {
	if err := os.MkdirAll(config.UserDataDir(), 0755); err != nil {
		initUserDataDirError = err
	}
}

func checkUserDataDirPermissions() {
	if initUserDataDirError == nil {
		return
	}
	if runtime.GOOS == "darwin" && strings.Contains(initUserDataDirError.Error(), "operation not permitted") {
		fmt.Println(T("error_macos_permission_header"))
		fmt.Printf(T("error_macos_permission_location"), config.UserDataDir())
		fmt.Println(T("error_macos_permission_fix_instructions"))
		fmt.Println()
	}
	log.Printf(T("error_macos_user_data_dir_warning"), initUserDataDirError)
}
