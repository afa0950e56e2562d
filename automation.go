package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"dropwatch/internal/config"
	"dropwatch/internal/logger"
	"dropwatch/internal/page/rodpage"
)

// errUserCanceled is returned when the user presses Esc at a prompt.
var errUserCanceled = errors.New("user canceled operation")

const watchInterval = 2 * time.Second

// Automation owns the browser process and the single tab the monitor drives.
type Automation struct {
	config   *config.Config
	log      *logger.Logger
	browser  *rod.Browser
	page     *rod.Page
	tab      *rodpage.Tab
	launcher *launcher.Launcher

	stopOnce sync.Once
	stopChan chan struct{}

	// alive reports browser liveness; isBrowserAlive unless replaced
	alive func() bool
}

func NewAutomation(cfg *config.Config, log *logger.Logger) *Automation {
	if log == nil {
		log = logger.Nop()
	}
	a := &Automation{
		config:   cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
	a.alive = a.isBrowserAlive
	return a
}

// Close stops the liveness watcher and tears the browser down.
func (a *Automation) Close() {
	a.stopOnce.Do(func() { close(a.stopChan) })

	if a.browser == nil && a.launcher == nil {
		return
	}
	fmt.Println(T("cleaning_up"))

	if a.page != nil {
		a.page.Close()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.launcher != nil {
		a.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}
	if _, err := a.browser.Version(); err != nil {
		a.log.Debug().Err(err).Msg("browser version check failed")
		return false
	}
	if a.page != nil {
		if _, err := a.page.Info(); err != nil {
			a.log.Debug().Err(err).Msg("page info check failed")
			return false
		}
	}
	return true
}

// watchBrowser cancels the run when the user closes the browser.
func (a *Automation) watchBrowser(cancel context.CancelFunc) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.alive() {
				fmt.Println(T("browser_closed_by_user"))
				fmt.Println(T("shutting_down"))
				cancel()
				return
			}
		}
	}
}

// setupBrowser launches Chrome with the configured profile and opens the
// tab. cancel is invoked if the browser goes away later.
func (a *Automation) setupBrowser(cancel context.CancelFunc) error {
	fmt.Println(T("browser_launching"))

	// leakless deadlocks on Windows, see go-rod/rod#853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless)

	// must precede Bin()
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		a.log.Debug().Str("path", a.config.BrowserProfilePath).Msg("browser profile set")
	}
	if a.config.WindowWidth > 0 && a.config.WindowHeight > 0 {
		a.launcher = a.launcher.Set("window-size", fmt.Sprintf("%d,%d", a.config.WindowWidth, a.config.WindowHeight))
	}
	if a.config.Proxy != "" {
		a.launcher = a.launcher.Proxy(a.config.Proxy)
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		a.log.Debug().Str("path", chromePath).Msg("chrome binary")
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		return a.launchError(err)
	}

	a.browser = rod.New().ControlURL(url)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	if err := a.openTab(); err != nil {
		return err
	}

	go a.watchBrowser(cancel)
	a.log.Debug().Msg("browser watcher started")

	fmt.Println(T("browser_launched"))
	return nil
}

func (a *Automation) openTab() error {
	p, err := a.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}
	a.page = p

	if a.config.WindowWidth > 0 && a.config.WindowHeight > 0 {
		err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             a.config.WindowWidth,
			Height:            a.config.WindowHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("failed to set viewport")
		}
	}

	if a.config.UserAgent != "" || a.config.AcceptLanguage != "" {
		ua := a.config.UserAgent
		if ua == "" {
			if v, err := a.browser.Version(); err == nil {
				ua = v.UserAgent
			}
		}
		err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: a.config.AcceptLanguage,
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("failed to set user agent")
		}
	}

	a.tab = rodpage.NewTab(p)
	return nil
}

// launchProblem names a known launch failure from its message.
func launchProblem(msg string) string {
	switch {
	case strings.Contains(msg, "Opening in existing browser session"),
		strings.Contains(msg, "ProcessSingleton"),
		strings.Contains(msg, "SingletonLock"):
		return "already_running"
	case strings.Contains(msg, "Access is denied"),
		strings.Contains(msg, "permission denied"):
		return "download_permission"
	}
	return ""
}

func (a *Automation) launchError(err error) error {
	switch launchProblem(err.Error()) {
	case "already_running":
		fmt.Println(T("error_chrome_already_running_header"))
		fmt.Println(T("error_chrome_fix_instructions"))
		fmt.Println(T("error_chrome_close_all"))
		if runtime.GOOS == "darwin" {
			fmt.Println(T("error_chrome_mac_killall"))
		} else if runtime.GOOS == "windows" {
			fmt.Println(T("error_chrome_windows_task_manager"))
		}
		fmt.Println(T("error_chrome_try_again"))
		return fmt.Errorf("%s: %w", T("error_chrome_already_running"), err)
	case "download_permission":
		fmt.Println(T("error_browser_download_permission"))
		fmt.Println(T("error_browser_download_fix"))
		fmt.Println(T("error_browser_download_alternative"))
		return fmt.Errorf("%s: %w", T("error_browser_setup_failed"), err)
	}
	return fmt.Errorf("failed to launch browser: %w", err)
}

// waitForLogin opens the login page and blocks until the user confirms
// they are signed in.
func (a *Automation) waitForLogin(ctx context.Context, in io.Reader) error {
	if !a.config.WaitForLogin {
		return nil
	}
	if a.config.LoginURL != "" {
		fmt.Printf(T("loading_login_page")+"\n", a.config.LoginURL)
		if err := a.tab.Navigate(ctx, a.config.LoginURL); err != nil {
			return fmt.Errorf("failed to open login page: %w", err)
		}
	}

	fmt.Println()
	fmt.Println(T("login_required_header"))
	fmt.Println(T("login_instructions"))
	fmt.Print(T("login_prompt"))

	if err := readConfirmation(bufio.NewReader(in)); err != nil {
		fmt.Println()
		fmt.Println(T("user_requested_exit"))
		return err
	}
	fmt.Println()
	fmt.Println(T("user_confirmed_ready"))
	return nil
}

// holdOpen keeps the browser up after the run, interrupted or not, until
// the user presses Enter. It returns at once with close_on_finish or when
// the browser is already gone.
func (a *Automation) holdOpen(in io.Reader) {
	if a.config.CloseOnFinish || !a.alive() {
		return
	}
	fmt.Print(T("browser_left_open"))
	_ = readConfirmation(bufio.NewReader(in))
}

// readConfirmation reads until Enter (nil) or Esc (errUserCanceled).
func readConfirmation(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		switch b {
		case '\n', '\r':
			return nil
		case 27:
			return errUserCanceled
		}
	}
}
