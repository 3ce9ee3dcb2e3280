package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/logutil"
	"github.com/kuitang/movieform/internal/movieform"
	"github.com/kuitang/movieform/internal/obs"
	"github.com/kuitang/movieform/internal/ratelimit"
	"github.com/kuitang/movieform/internal/session"
)

// maxEventBody bounds a field update; descriptions are the only long values.
const maxEventBody = 64 << 10

// PageData is passed to every page template.
type PageData struct {
	Title     string
	Error     string
	SessionID string
	Form      movieform.View
	Movies    []catalog.Entry
	Content   template.HTML
}

// EventResponse is the body of every successful event call.
type EventResponse struct {
	Form      movieform.View `json:"form"`
	Submitted bool           `json:"submitted"`
	ListHTML  string         `json:"list_html,omitempty"`
	Count     int            `json:"count"`
}

type fieldRequest struct {
	Value *string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// MovieHandler serves the movie page and its event endpoints.
type MovieHandler struct {
	renderer  *Renderer
	sessions  *session.Store
	limiter   *ratelimit.RateLimiter
	staticDir string
}

// NewMovieHandler creates a movie handler. limiter may be nil to disable throttling.
func NewMovieHandler(renderer *Renderer, sessions *session.Store, limiter *ratelimit.RateLimiter, staticDir string) *MovieHandler {
	return &MovieHandler{
		renderer:  renderer,
		sessions:  sessions,
		limiter:   limiter,
		staticDir: staticDir,
	}
}

// RegisterRoutes registers the page, its assets and the per-session event routes.
func (h *MovieHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /about", h.HandleAbout)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(os.DirFS(h.staticDir))))

	limited := func(fn http.HandlerFunc) http.Handler {
		if h.limiter == nil {
			return fn
		}
		return ratelimit.Middleware(h.limiter, ratelimit.PathValueKey("id"))(fn)
	}

	mux.Handle("GET /sessions/{id}", limited(h.HandleState))
	mux.Handle("POST /sessions/{id}/fields/{field}", limited(h.HandleSetField))
	mux.Handle("POST /sessions/{id}/fields/{field}/blur", limited(h.HandleBlur))
	mux.Handle("POST /sessions/{id}/submit", limited(h.HandleSubmit))
	mux.Handle("POST /sessions/{id}/movies/{movie}/toggle", limited(h.HandleToggle))
	mux.Handle("POST /sessions/{id}/movies/{movie}/delete", limited(h.HandleDelete))
}

// HandleIndex opens a new session and renders the page in its initial state.
func (h *MovieHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	ctx := obs.WithSessionID(r.Context(), s.ID)

	data := PageData{Title: "Movies", SessionID: s.ID}
	s.Do(func(form *movieform.Form, list *catalog.List) {
		data.Form = form.View()
		data.Movies = list.Movies()
	})

	obs.From(ctx).Info("session_opened", "movies", len(data.Movies))
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Render(w, "movies/index.html", data); err != nil {
		obs.From(ctx).Error("render_failed", "template", "movies/index.html", "error", err)
		h.renderer.RenderError(w, http.StatusInternalServerError, "Failed to render page")
	}
}

// HandleState returns the full current state of a session.
func (h *MovieHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		return EventResponse{}, true, nil
	})
}

// HandleSetField stores a new value for one field.
func (h *MovieHandler) HandleSetField(w http.ResponseWriter, r *http.Request) {
	field, err := movieform.ParseField(r.PathValue("field"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	value, err := decodeFieldValue(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		form.SetField(field, value)
		obs.From(ctx).Debug("field_set", "field", string(field), "value", logutil.FieldForLog(value))
		return EventResponse{}, false, nil
	})
}

// HandleBlur marks one field as touched.
func (h *MovieHandler) HandleBlur(w http.ResponseWriter, r *http.Request) {
	field, err := movieform.ParseField(r.PathValue("field"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		form.Blur(field)
		return EventResponse{}, false, nil
	})
}

// HandleSubmit attempts a submit. An invalid draft is not an error: the response simply
// carries submitted=false and the now visible field errors.
func (h *MovieHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		rec, ok := form.Submit(list)
		if !ok {
			obs.From(ctx).Info("submit_rejected", "errors", len(form.View().VisibleErrors()))
			return EventResponse{}, true, nil
		}
		obs.From(ctx).Info("movie_added",
			"title", logutil.FieldForLog(rec.Title),
			"imdb_id", logutil.FieldForLog(rec.ImdbID),
			"count", list.Len(),
		)
		return EventResponse{Submitted: true}, true, nil
	})
}

// HandleToggle flips the selection of one listed movie, named by its entry ID.
func (h *MovieHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		index, err := list.IndexOf(movieID)
		if err != nil {
			return EventResponse{}, false, err
		}
		if err := list.ToggleSelect(index); err != nil {
			return EventResponse{}, false, err
		}
		selected, _ := list.IsSelected(index)
		obs.From(ctx).Debug("movie_toggled", "movie_id", movieID, "index", index, "selected", selected)
		return EventResponse{}, true, nil
	})
}

// HandleDelete removes one listed movie, named by its entry ID.
func (h *MovieHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.handleEvent(w, r, func(ctx context.Context, form *movieform.Form, list *catalog.List) (EventResponse, bool, error) {
		index, err := list.IndexOf(movieID)
		if err != nil {
			return EventResponse{}, false, err
		}
		if err := list.Delete(index); err != nil {
			return EventResponse{}, false, err
		}
		obs.From(ctx).Info("movie_deleted", "movie_id", movieID, "index", index, "count", list.Len())
		return EventResponse{}, true, nil
	})
}

// HandleAbout renders about.md from the static directory.
func (h *MovieHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	source, err := os.ReadFile(filepath.Join(h.staticDir, "about.md"))
	if err != nil {
		obs.From(r.Context()).Error("about_read_failed", "error", err)
		h.renderer.RenderError(w, http.StatusNotFound, "Page not found")
		return
	}

	data := PageData{Title: "About", Content: renderMarkdown(string(source))}
	if err := h.renderer.Render(w, "about.html", data); err != nil {
		obs.From(r.Context()).Error("render_failed", "template", "about.html", "error", err)
		h.renderer.RenderError(w, http.StatusInternalServerError, "Failed to render page")
	}
}

// HandleHealth reports liveness.
func (h *MovieHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// eventFunc applies one event. withList asks for the rendered list in the response.
type eventFunc func(ctx context.Context, form *movieform.Form, list *catalog.List) (resp EventResponse, withList bool, err error)

// handleEvent resolves the session, runs fn under the session lock and writes the
// resulting state.
func (h *MovieHandler) handleEvent(w http.ResponseWriter, r *http.Request, fn eventFunc) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := obs.WithSessionID(r.Context(), s.ID)
	r = r.WithContext(ctx)

	var (
		resp   EventResponse
		evtErr error
	)
	s.Do(func(form *movieform.Form, list *catalog.List) {
		var withList bool
		resp, withList, evtErr = fn(ctx, form, list)
		if evtErr != nil {
			return
		}
		resp.Form = form.View()
		resp.Count = list.Len()
		if withList {
			var buf bytes.Buffer
			if err := h.renderer.RenderFragment(&buf, "movie-list", list.Movies()); err != nil {
				evtErr = err
				return
			}
			resp.ListHTML = buf.String()
		}
	})
	if evtErr != nil {
		writeError(w, r, evtErr)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeFieldValue(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", errs.Wrap(errs.InvalidArgument, "value is too long", err)
		}
		if errors.Is(err, io.EOF) {
			return "", errs.New(errs.InvalidArgument, "request body is required")
		}
		return "", errs.Wrap(errs.InvalidArgument, "request body must be JSON", err)
	}
	if req.Value == nil {
		return "", errs.New(errs.InvalidArgument, `"value" is required`)
	}
	return *req.Value, nil
}

func parseMovieID(r *http.Request) (int, error) {
	raw := r.PathValue("movie")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, "invalid movie id: "+logutil.TruncateForLog(raw, 20), err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(errs.CodeOf(err))
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("event_failed", "path", r.URL.Path, "error", err)
	} else {
		obs.From(r.Context()).Debug("event_rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: errs.MessageOf(err)})
}
