// Package browser provides shared test utilities for Playwright browser tests.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t).
package browser

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/movieform"
	"github.com/kuitang/movieform/internal/obs"
	"github.com/kuitang/movieform/internal/ratelimit"
	"github.com/kuitang/movieform/internal/session"
	"github.com/kuitang/movieform/internal/web"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared test environment for all browser tests: one server, one
// browser. Every page load opens its own form session, so tests do not see each other.
type BrowserTestEnv struct {
	Server      *httptest.Server
	BaseURL     string
	Sessions    *session.Store
	Renderer    *web.Renderer
	RateLimiter *ratelimit.RateLimiter

	pw        *playwright.Playwright
	browser   playwright.Browser
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared server, creating it on first use.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		browserSharedFixture = createBrowserTestEnv(t, nil)
	}
	return browserSharedFixture
}

// SetupSeededBrowserTestEnv creates a dedicated server whose sessions start from seed.
// It is closed when the test ends.
func SetupSeededBrowserTestEnv(t *testing.T, seed []movieform.Record) *BrowserTestEnv {
	t.Helper()

	env := createBrowserTestEnv(t, seed)
	t.Cleanup(env.close)
	return env
}

func createBrowserTestEnv(t *testing.T, seed []movieform.Record) *BrowserTestEnv {
	t.Helper()

	renderer, err := web.NewRenderer(findWebDir("templates"))
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	// High limits; tests type character by character.
	rateLimiter := ratelimit.NewRateLimiter(ratelimit.Config{
		RPS:             10000,
		Burst:           100000,
		CleanupInterval: time.Hour,
	})
	sessions := session.NewStore(session.Config{
		TTL:             time.Hour,
		MaxSessions:     1000,
		CleanupInterval: time.Hour,
	}, seed, rateLimiter.Forget)

	mux := http.NewServeMux()
	web.NewMovieHandler(renderer, sessions, rateLimiter, findWebDir("static")).RegisterRoutes(mux)
	server := httptest.NewServer(obs.RequestContextMiddleware(obs.AccessLogMiddleware("browser-test", mux)))

	return &BrowserTestEnv{
		Server:      server,
		BaseURL:     server.URL,
		Sessions:    sessions,
		Renderer:    renderer,
		RateLimiter: rateLimiter,
	}
}

func (env *BrowserTestEnv) close() {
	env.browserMu.Lock()
	if env.browser != nil {
		_ = env.browser.Close()
	}
	if env.pw != nil {
		_ = env.pw.Stop()
	}
	env.browserMu.Unlock()

	env.Server.Close()
	env.Sessions.Stop()
	env.RateLimiter.Stop()
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		return
	}
	browserSharedFixture.close()
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

func findWebDir(name string) string {
	dir := filepath.Join(repositoryRoot(), "web", name)
	if _, err := os.Stat(dir); err != nil {
		panic("Cannot find web/" + name + " directory")
	}
	return dir
}

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Failed to resolve repository root for test utilities")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser initializes Playwright and launches Chromium. Skips the test if not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.browser != nil {
		return
	}
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	env.pw = pw
	env.browser = browser
}

// NewPage creates a new browser page with default 5s timeout. It is closed when the
// test ends.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()

	page, err := env.browser.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultTimeout(browserMaxTimeoutMS)
	page.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	t.Cleanup(func() { _ = page.Close() })
	return page
}

// =============================================================================
// Navigation and wait helpers
// =============================================================================

// Navigate navigates to a path on the test server and waits for DOMContentLoaded.
func Navigate(t *testing.T, page playwright.Page, baseURL, path string) {
	t.Helper()

	_, err := page.Goto(baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for an element to be visible and returns its locator.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	locator := page.Locator(selector)
	first := locator.First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		content, _ := page.Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", page.URL())
		t.Logf("Content preview: %s", content)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// WaitForIdle waits until every event the page script sent has been applied.
func WaitForIdle(t *testing.T, page playwright.Page) {
	t.Helper()

	_, err := page.WaitForFunction(
		`() => { const f = document.querySelector('form[data-cy="movie-form"]'); return f && f.dataset.pending === '0'; }`,
		nil,
		playwright.PageWaitForFunctionOptions{Timeout: playwright.Float(browserMaxTimeoutMS)},
	)
	if err != nil {
		t.Fatalf("page did not settle: %v", err)
	}
	if lastErr, _ := page.Locator(`form[data-cy="movie-form"]`).GetAttribute("data-last-error"); lastErr != "" {
		t.Fatalf("page script reported error: %s", lastErr)
	}
}

// routeGate holds requests matching a pattern until opened. It opens on cleanup so no
// route handler outlives the test.
type routeGate struct {
	release chan struct{}
	once    sync.Once
}

func holdRequests(t *testing.T, page playwright.Page, pattern string) *routeGate {
	t.Helper()

	g := &routeGate{release: make(chan struct{})}
	if err := page.Route(pattern, func(route playwright.Route) {
		<-g.release
		_ = route.Continue()
	}); err != nil {
		t.Fatalf("Failed to install route gate for %s: %v", pattern, err)
	}
	t.Cleanup(g.open)
	return g
}

func (g *routeGate) open() {
	g.once.Do(func() { close(g.release) })
}

// ServerView returns the form state the server holds for the page's session.
func (env *BrowserTestEnv) ServerView(t *testing.T, page playwright.Page) (movieform.View, []catalog.Entry) {
	t.Helper()

	id, err := page.Locator("[data-session]").GetAttribute("data-session")
	if err != nil {
		t.Fatalf("read session id: %v", err)
	}
	s, err := env.Sessions.Get(id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}

	var (
		view    movieform.View
		entries []catalog.Entry
	)
	s.Do(func(form *movieform.Form, list *catalog.List) {
		view = form.View()
		entries = list.Movies()
	})
	return view, entries
}

// =============================================================================
// Movie form helpers
// =============================================================================

// movieForm drives the form through the page, the way a user would.
type movieForm struct {
	t    *testing.T
	page playwright.Page
}

func newMovieForm(t *testing.T, page playwright.Page) *movieForm {
	return &movieForm{t: t, page: page}
}

func (f *movieForm) field(name movieform.Field) playwright.Locator {
	return f.page.Locator(`[data-cy="movie-form__` + string(name) + `"]`)
}

func (f *movieForm) errorFor(name movieform.Field) playwright.Locator {
	return f.page.Locator(`.field:has([data-cy="movie-form__` + string(name) + `"]) .help.is-danger`)
}

// typeInto types value key by key, or clears the field when value is empty.
func (f *movieForm) typeInto(name movieform.Field, value string) {
	f.t.Helper()

	input := f.field(name)
	var err error
	if value == "" {
		err = input.Fill("")
	} else {
		err = input.PressSequentially(value)
	}
	if err != nil {
		f.t.Fatalf("type into %s: %v", name, err)
	}
}

// fill types every field in display order, moving focus from field to field.
func (f *movieForm) fill(rec movieform.Record) {
	f.t.Helper()

	for _, name := range movieform.Fields {
		f.typeInto(name, movieform.Draft(rec).Get(name))
	}
	WaitForIdle(f.t, f.page)
}

// submit sends a submit event on the form. A disabled button cannot be clicked, so an
// invalid form is submitted the way pressing Enter would.
func (f *movieForm) submit() {
	f.t.Helper()

	button := f.page.Locator(`[data-cy="movie-form__submit-button"]`)
	enabled, err := button.IsEnabled()
	if err != nil {
		f.t.Fatalf("read submit state: %v", err)
	}
	if enabled {
		err = button.Click()
	} else {
		err = f.page.Locator(`form[data-cy="movie-form"]`).DispatchEvent("submit", nil)
	}
	if err != nil {
		f.t.Fatalf("submit: %v", err)
	}
	WaitForIdle(f.t, f.page)
}

func (f *movieForm) value(name movieform.Field) string {
	f.t.Helper()

	v, err := f.field(name).InputValue()
	if err != nil {
		f.t.Fatalf("read %s: %v", name, err)
	}
	return v
}

func (f *movieForm) errorCount() int {
	f.t.Helper()

	n, err := f.page.Locator("form .help.is-danger").Count()
	if err != nil {
		f.t.Fatalf("count errors: %v", err)
	}
	return n
}

func (f *movieForm) hasError(name movieform.Field) bool {
	f.t.Helper()

	n, err := f.errorFor(name).Count()
	if err != nil {
		f.t.Fatalf("count %s errors: %v", name, err)
	}
	return n > 0
}

func movies(page playwright.Page) playwright.Locator {
	return page.Locator(`[data-cy="movie"]`)
}

func movieCount(t *testing.T, page playwright.Page) int {
	t.Helper()

	n, err := movies(page).Count()
	if err != nil {
		t.Fatalf("count movies: %v", err)
	}
	return n
}

// assertMovieAt checks the rendered entry at index against rec.
func assertMovieAt(t *testing.T, page playwright.Page, index int, rec movieform.Record) {
	t.Helper()

	movie := movies(page).Nth(index)
	title, err := movie.Locator(`[data-cy="movie__title"]`).TextContent()
	if err != nil {
		t.Fatalf("movie %d title: %v", index, err)
	}
	if title != rec.Title {
		t.Errorf("movie %d title = %q, want %q", index, title, rec.Title)
	}

	description, err := movie.Locator(`[data-cy="movie__description"]`).TextContent()
	if err != nil {
		t.Fatalf("movie %d description: %v", index, err)
	}
	if description != rec.Description {
		t.Errorf("movie %d description = %q, want %q", index, description, rec.Description)
	}

	href, err := movie.Locator(`[data-cy="movie__link"]`).GetAttribute("href")
	if err != nil {
		t.Fatalf("movie %d link: %v", index, err)
	}
	if want := "https://www.imdb.com/title/" + rec.ImdbID; href != want {
		t.Errorf("movie %d href = %q, want %q", index, href, want)
	}

	src, err := movie.Locator(`[data-cy="movie__image"]`).GetAttribute("src")
	if err != nil {
		t.Fatalf("movie %d image: %v", index, err)
	}
	if src != rec.ImgURL {
		t.Errorf("movie %d src = %q, want %q", index, src, rec.ImgURL)
	}
}
