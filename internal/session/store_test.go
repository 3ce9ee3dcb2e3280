package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/movieform"
)

var seed = []movieform.Record{
	{Title: "The Dark Knight", ImgURL: "https://example.com/tdk.jpg", ImdbID: "tt0468569"},
}

func newTestStore(t *testing.T, config Config, onExpire func(string)) *Store {
	t.Helper()
	st := NewStore(config, seed, onExpire)
	t.Cleanup(st.Stop)
	return st
}

func TestStore_CreateAndGet(t *testing.T) {
	st := newTestStore(t, Config{TTL: time.Hour, MaxSessions: 10, CleanupInterval: time.Hour}, nil)

	s := st.Create()
	require.NotEmpty(t, s.ID)

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	got.Do(func(form *movieform.Form, list *catalog.List) {
		assert.Equal(t, movieform.Draft{}, form.Draft())
		assert.Equal(t, 1, list.Len())
	})
}

func TestStore_GetUnknown(t *testing.T) {
	st := newTestStore(t, DefaultConfig, nil)
	_, err := st.Get("missing")
	assert.True(t, errs.Is(err, errs.NotFound), "got %v", err)
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	st := newTestStore(t, DefaultConfig, nil)
	a := st.Create()
	b := st.Create()
	require.NotEqual(t, a.ID, b.ID)

	a.Do(func(form *movieform.Form, list *catalog.List) {
		form.SetField(movieform.Title, "Up")
		form.SetField(movieform.ImgURL, "https://example.com/up.jpg")
		form.SetField(movieform.ImdbID, "tt1049413")
		_, ok := form.Submit(list)
		require.True(t, ok)
		require.NoError(t, list.ToggleSelect(0))
	})

	b.Do(func(form *movieform.Form, list *catalog.List) {
		assert.Equal(t, 1, list.Len(), "submit leaked into another session")
		selected, err := list.IsSelected(0)
		require.NoError(t, err)
		assert.False(t, selected, "selection leaked into another session")
	})
}

func TestStore_CleanupExpiresIdleSessions(t *testing.T) {
	var mu sync.Mutex
	var expired []string
	st := newTestStore(t, Config{TTL: 10 * time.Millisecond, CleanupInterval: time.Hour}, func(id string) {
		mu.Lock()
		expired = append(expired, id)
		mu.Unlock()
	})

	s := st.Create()
	time.Sleep(20 * time.Millisecond)
	st.Cleanup()

	assert.Equal(t, 0, st.Len())
	_, err := st.Get(s.ID)
	assert.True(t, errs.Is(err, errs.NotFound))
	mu.Lock()
	assert.Equal(t, []string{s.ID}, expired)
	mu.Unlock()
}

func TestStore_MaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	st := newTestStore(t, Config{TTL: time.Hour, MaxSessions: 2, CleanupInterval: time.Hour}, func(id string) {
		evicted = append(evicted, id)
	})

	first := st.Create()
	time.Sleep(2 * time.Millisecond)
	second := st.Create()
	time.Sleep(2 * time.Millisecond)
	_, err := st.Get(first.ID) // first is now the most recent
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	third := st.Create()

	assert.Equal(t, 2, st.Len())
	assert.Equal(t, []string{second.ID}, evicted)
	_, err = st.Get(third.ID)
	assert.NoError(t, err)
	_, err = st.Get(first.ID)
	assert.NoError(t, err)
}

// =============================================================================
// Property: concurrent events on one session are serialized
// =============================================================================

func testSession_ConcurrentSubmitsAllLand(t *rapid.T) {
	st := NewStore(Config{TTL: time.Hour, CleanupInterval: time.Hour}, nil, nil)
	defer st.Stop()
	s := st.Create()

	workers := rapid.IntRange(2, 16).Draw(t, "workers")
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do(func(form *movieform.Form, list *catalog.List) {
				form.SetField(movieform.Title, "Up")
				form.SetField(movieform.ImgURL, "https://example.com/up.jpg")
				form.SetField(movieform.ImdbID, "tt1049413")
				form.Submit(list)
			})
		}()
	}
	wg.Wait()

	s.Do(func(form *movieform.Form, list *catalog.List) {
		if list.Len() != workers {
			t.Fatalf("expected %d records, got %d", workers, list.Len())
		}
		if form.Draft() != (movieform.Draft{}) {
			t.Fatalf("form not clear after final submit: %+v", form.Draft())
		}
	})
}

func TestSession_ConcurrentSubmitsAllLand(t *testing.T) {
	rapid.Check(t, testSession_ConcurrentSubmitsAllLand)
}
