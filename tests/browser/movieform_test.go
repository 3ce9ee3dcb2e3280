// Package browser contains Playwright E2E tests for the movie page.
// These are deterministic scenario-based tests (NOT property-based).
//
// Prerequisites:
// - Install Playwright browsers: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium
// - Run tests with: go test -v ./tests/browser/...
package browser

import (
	"net/http"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/movieform/internal/movieform"
)

var newMovies = []movieform.Record{
	{
		Title:       "Inside Out",
		Description: "After young Riley is uprooted from her Midwest life and moved to San Francisco, her emotions - Joy, Fear, Anger, Disgust and Sadness - conflict on how best to navigate a new city, house, and school.",
		ImgURL:      "https://m.media-amazon.com/images/M/MV5BOTgxMDQwMDk0OF5BMl5BanBnXkFtZTgwNjU5OTg2NDE@._V1_QL75_UX380_CR0,0,380,562_.jpg",
		ImdbID:      "tt2096673",
	},
	{
		Title:       "The Dark Knight",
		Description: "When the menace known as the Joker wreaks havoc and chaos on the people of Gotham, Batman, James Gordon and Harvey Dent must work together to put an end to the madness.",
		ImgURL:      "https://m.media-amazon.com/images/M/MV5BMTMxNTMwODM0NF5BMl5BanBnXkFtZTcwODAyMTk2Mw@@._V1_QL75_UX380_CR0,0,380,562_.jpg",
		ImdbID:      "tt0468569",
	},
	{
		Title:       "Forrest Gump",
		Description: "The history of the United States from the 1950s to the '70s unfolds from the perspective of an Alabama man with an IQ of 75, who yearns to be reunited with his childhood sweetheart.",
		ImgURL:      "https://m.media-amazon.com/images/M/MV5BNWIwODRlZTUtY2U3ZS00Yzg1LWJhNzYtMmZiYmEyNmU1NjMzXkEyXkFqcGdeQXVyMTQxNzMzNDI@._V1_QL75_UY562_CR4,0,380,562_.jpg",
		ImdbID:      "tt0109830",
	},
}

// openMoviePage loads a fresh page, and with it a fresh form session.
func openMoviePage(t *testing.T, env *BrowserTestEnv) (playwright.Page, *movieForm) {
	t.Helper()

	env.InitBrowser(t)
	page := env.NewPage(t)
	Navigate(t, page, env.BaseURL, "/")
	WaitForSelector(t, page, `form[data-cy="movie-form"]`)
	return page, newMovieForm(t, page)
}

func markBeforeReload(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Evaluate(`() => { window.beforeReload = true; }`); err != nil {
		t.Fatalf("mark window: %v", err)
	}
}

func assertNotReloaded(t *testing.T, page playwright.Page) {
	t.Helper()
	got, err := page.Evaluate(`() => window.beforeReload === true`)
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if got != true {
		t.Error("page was reloaded")
	}
}

func assertValues(t *testing.T, form *movieForm, rec movieform.Record) {
	t.Helper()
	for _, name := range movieform.Fields {
		if got, want := form.value(name), movieform.Draft(rec).Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func withField(rec movieform.Record, name movieform.Field, value string) movieform.Record {
	d := movieform.Draft(rec)
	switch name {
	case movieform.Title:
		d.Title = value
	case movieform.Description:
		d.Description = value
	case movieform.ImgURL:
		d.ImgURL = value
	case movieform.ImdbID:
		d.ImdbID = value
	}
	return movieform.Record(d)
}

// =============================================================================
// Initial state
// =============================================================================

func TestMovieForm_ByDefault(t *testing.T) {
	env := SetupBrowserTestEnv(t)

	t.Run("list has no movies", func(t *testing.T) {
		page, _ := openMoviePage(t, env)
		if n := movieCount(t, page); n != 0 {
			t.Errorf("movies = %d, want 0", n)
		}
	})

	t.Run("form is empty and has no errors", func(t *testing.T) {
		_, form := openMoviePage(t, env)
		assertValues(t, form, movieform.Record{})
		if n := form.errorCount(); n != 0 {
			t.Errorf("errors = %d, want 0", n)
		}
	})

	t.Run("submit is disabled", func(t *testing.T) {
		page, _ := openMoviePage(t, env)
		enabled, err := page.Locator(`[data-cy="movie-form__submit-button"]`).IsEnabled()
		if err != nil {
			t.Fatal(err)
		}
		if enabled {
			t.Error("submit enabled on an empty form")
		}
	})

	entries := map[movieform.Field]string{
		movieform.Title:       "The Umbrella Academy",
		movieform.Description: "Some description",
		movieform.ImgURL:      "https://www.example.com/image.jpg",
		movieform.ImdbID:      "tt1312171",
	}
	for _, name := range movieform.Fields {
		t.Run(string(name)+" can be entered", func(t *testing.T) {
			_, form := openMoviePage(t, env)
			form.typeInto(name, entries[name])
			WaitForIdle(t, form.page)
			if got := form.value(name); got != entries[name] {
				t.Errorf("%s = %q, want %q", name, got, entries[name])
			}
		})
	}
}

func TestMovieForm_ErrorsAppearOnlyOnBlur(t *testing.T) {
	env := SetupBrowserTestEnv(t)

	for _, name := range movieform.Fields {
		t.Run(string(name), func(t *testing.T) {
			page, form := openMoviePage(t, env)
			input := form.field(name)

			if err := input.Focus(); err != nil {
				t.Fatal(err)
			}
			if form.hasError(name) {
				t.Fatal("error shown on focus")
			}

			if err := input.PressSequentially("1"); err != nil {
				t.Fatal(err)
			}
			if err := input.Press("Backspace"); err != nil {
				t.Fatal(err)
			}
			WaitForIdle(t, page)
			if form.hasError(name) {
				t.Fatal("error shown while typing")
			}

			if err := input.Blur(); err != nil {
				t.Fatal(err)
			}
			WaitForIdle(t, page)

			if got, want := form.hasError(name), name.Required(); got != want {
				t.Errorf("error visible after blur = %v, want %v", got, want)
			}
			if n := form.errorCount(); name.Required() && n != 1 {
				t.Errorf("errors = %d, want only this field's", n)
			}
		})
	}
}

func TestMovieForm_ErrorClearsWhenValueEntered(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	page, form := openMoviePage(t, env)

	if err := form.field(movieform.Title).Focus(); err != nil {
		t.Fatal(err)
	}
	if err := form.field(movieform.Title).Blur(); err != nil {
		t.Fatal(err)
	}
	WaitForIdle(t, page)
	if !form.hasError(movieform.Title) {
		t.Fatal("expected title error after blur")
	}

	form.typeInto(movieform.Title, "Heat")
	WaitForIdle(t, page)
	if form.hasError(movieform.Title) {
		t.Error("title error still visible after typing")
	}
}

func TestMovieForm_SubmitTracksEveryKeystroke(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	page, form := openMoviePage(t, env)
	button := page.Locator(`[data-cy="movie-form__submit-button"]`)

	rec := withField(newMovies[0], movieform.ImdbID, "")
	form.fill(rec)
	if enabled, _ := button.IsEnabled(); enabled {
		t.Fatal("submit enabled with imdbId missing")
	}

	form.typeInto(movieform.ImdbID, "t")
	WaitForIdle(t, page)
	if enabled, _ := button.IsEnabled(); !enabled {
		t.Fatal("submit still disabled after imdbId typed")
	}

	if err := form.field(movieform.ImdbID).Press("Backspace"); err != nil {
		t.Fatal(err)
	}
	WaitForIdle(t, page)
	if enabled, _ := button.IsEnabled(); enabled {
		t.Error("submit enabled after imdbId cleared")
	}
}

// =============================================================================
// Submit with correct values
// =============================================================================

func TestMovieForm_SubmitWithCorrectValues(t *testing.T) {
	env := SetupBrowserTestEnv(t)

	t.Run("movie is added", func(t *testing.T) {
		page, form := openMoviePage(t, env)
		form.fill(newMovies[0])
		form.submit()

		if n := movieCount(t, page); n != 1 {
			t.Fatalf("movies = %d, want 1", n)
		}
		assertMovieAt(t, page, 0, newMovies[0])
	})

	t.Run("form is cleared", func(t *testing.T) {
		_, form := openMoviePage(t, env)
		form.fill(newMovies[0])
		form.submit()

		assertValues(t, form, movieform.Record{})
		if n := form.errorCount(); n != 0 {
			t.Errorf("errors = %d, want 0", n)
		}
	})

	t.Run("page is not reloaded", func(t *testing.T) {
		page, form := openMoviePage(t, env)
		form.fill(newMovies[0])
		markBeforeReload(t, page)
		form.submit()
		assertNotReloaded(t, page)
	})

	t.Run("can add more movies", func(t *testing.T) {
		page, form := openMoviePage(t, env)
		for _, rec := range newMovies {
			form.fill(rec)
			form.submit()
		}

		if n := movieCount(t, page); n != len(newMovies) {
			t.Fatalf("movies = %d, want %d", n, len(newMovies))
		}
		for i, rec := range newMovies {
			assertMovieAt(t, page, i, rec)
		}
	})
}

// =============================================================================
// Submit with missing values
// =============================================================================

func TestMovieForm_SubmitWithMissingValues(t *testing.T) {
	env := SetupBrowserTestEnv(t)

	t.Run("errors are shown for all empty required fields", func(t *testing.T) {
		_, form := openMoviePage(t, env)
		form.fill(movieform.Record{})
		form.submit()

		if n := form.errorCount(); n != 3 {
			t.Errorf("errors = %d, want 3", n)
		}
		for _, name := range movieform.RequiredFields {
			if !form.hasError(name) {
				t.Errorf("no error for %s", name)
			}
		}
	})

	t.Run("movie is not added", func(t *testing.T) {
		page, form := openMoviePage(t, env)
		form.fill(withField(newMovies[0], movieform.Title, ""))
		form.submit()

		if n := movieCount(t, page); n != 0 {
			t.Errorf("movies = %d, want 0", n)
		}
	})

	t.Run("page is not reloaded", func(t *testing.T) {
		page, form := openMoviePage(t, env)
		markBeforeReload(t, page)
		form.fill(withField(newMovies[0], movieform.Title, ""))
		form.submit()
		assertNotReloaded(t, page)
	})

	for _, name := range movieform.RequiredFields {
		t.Run("empty "+string(name)+" keeps values", func(t *testing.T) {
			_, form := openMoviePage(t, env)
			values := withField(newMovies[0], name, "")
			form.fill(values)
			form.submit()

			assertValues(t, form, values)
			if n := form.errorCount(); n != 1 {
				t.Errorf("errors = %d, want 1", n)
			}
			if !form.hasError(name) {
				t.Errorf("no error for %s", name)
			}
		})
	}
}

// =============================================================================
// List interactions
// =============================================================================

func TestMovieList_SelectAndDelete(t *testing.T) {
	env := SetupSeededBrowserTestEnv(t, newMovies)
	page, _ := openMoviePage(t, env)

	if n := movieCount(t, page); n != len(newMovies) {
		t.Fatalf("movies = %d, want %d", n, len(newMovies))
	}

	isSelected := func(i int) bool {
		t.Helper()
		class, err := movies(page).Nth(i).GetAttribute("class")
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range strings.Fields(class) {
			if c == "is-selected" {
				return true
			}
		}
		return false
	}
	click := func(i int, action string) {
		t.Helper()
		if err := movies(page).Nth(i).Locator(`[data-cy="movie__` + action + `"]`).Click(); err != nil {
			t.Fatal(err)
		}
		WaitForIdle(t, page)
	}

	click(1, "select")
	if !isSelected(1) || isSelected(0) || isSelected(2) {
		t.Fatal("only the second movie should be selected")
	}

	click(1, "select")
	if isSelected(1) {
		t.Fatal("second movie still selected after second click")
	}

	click(0, "select")
	click(0, "delete")
	if n := movieCount(t, page); n != 2 {
		t.Fatalf("movies = %d, want 2", n)
	}
	assertMovieAt(t, page, 0, newMovies[1])
	assertMovieAt(t, page, 1, newMovies[2])
	if isSelected(0) || isSelected(1) {
		t.Error("selection leaked to remaining movies")
	}
}

func TestMovieList_PagesDoNotShareState(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	first, form := openMoviePage(t, env)
	form.fill(newMovies[2])
	form.submit()

	second, _ := openMoviePage(t, env)
	if n := movieCount(t, second); n != 0 {
		t.Errorf("second page movies = %d, want 0", n)
	}
	if n := movieCount(t, first); n != 1 {
		t.Errorf("first page movies = %d, want 1", n)
	}
}

func TestMovieList_DeletesQueuedBehindEachOtherHitTheirOwnMovies(t *testing.T) {
	env := SetupSeededBrowserTestEnv(t, newMovies)
	page, _ := openMoviePage(t, env)

	gate := holdRequests(t, page, "**/delete")
	for _, i := range []int{0, 1} {
		if err := movies(page).Nth(i).Locator(`[data-cy="movie__delete"]`).Click(); err != nil {
			t.Fatalf("delete movie %d: %v", i, err)
		}
	}
	gate.open()
	WaitForIdle(t, page)

	if n := movieCount(t, page); n != 1 {
		t.Fatalf("movies = %d, want 1", n)
	}
	assertMovieAt(t, page, 0, newMovies[2])
	if _, entries := env.ServerView(t, page); len(entries) != 1 || entries[0].Title != newMovies[2].Title {
		t.Errorf("server list = %+v, want only %q", entries, newMovies[2].Title)
	}
}

// =============================================================================
// Events racing the server
// =============================================================================

func TestMovieForm_TypingDuringSubmitIsKept(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	page, form := openMoviePage(t, env)
	form.fill(newMovies[0])

	gate := holdRequests(t, page, "**/submit")
	if err := page.Locator(`[data-cy="movie-form__submit-button"]`).Click(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := form.field(movieform.Title).Fill("Up"); err != nil {
		t.Fatalf("type title: %v", err)
	}
	gate.open()
	WaitForIdle(t, page)

	if n := movieCount(t, page); n != 1 {
		t.Fatalf("movies = %d, want 1", n)
	}
	assertMovieAt(t, page, 0, newMovies[0])
	assertValues(t, form, movieform.Record{Title: "Up"})

	view, _ := env.ServerView(t, page)
	if fv, _ := view.Field(movieform.Title); fv.Value != "Up" {
		t.Errorf("server title = %q, want %q", fv.Value, "Up")
	}
	if disabled, _ := page.Locator(`[data-cy="movie-form__submit-button"]`).IsDisabled(); !disabled {
		t.Error("submit button enabled with only a title")
	}
}

func TestMovieForm_RejectedEventIsResent(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	page, form := openMoviePage(t, env)

	if err := page.Route("**/fields/title", func(route playwright.Route) {
		_ = route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(http.StatusTooManyRequests),
			ContentType: playwright.String("application/json"),
			Body:        `{"error":"too many events, slow down"}`,
		})
	}, 1); err != nil {
		t.Fatalf("Failed to install route mock: %v", err)
	}

	if err := form.field(movieform.Title).Fill("Heat"); err != nil {
		t.Fatalf("type title: %v", err)
	}
	WaitForIdle(t, page)

	view, _ := env.ServerView(t, page)
	if fv, _ := view.Field(movieform.Title); fv.Value != "Heat" {
		t.Errorf("server title = %q, want %q", fv.Value, "Heat")
	}
	if got := form.value(movieform.Title); got != "Heat" {
		t.Errorf("title = %q, want %q", got, "Heat")
	}
}
