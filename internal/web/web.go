package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/source"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Book is the read-only document view the viewport needs.
type Book interface {
	SlotCount() int
	Dimensions() (source.Dimensions, bool)
}

// Scheduler receives navigation events and serves cached page images.
type Scheduler interface {
	OnNavigate(ctx context.Context, index int) error
	Payload(index int) (*source.Payload, bool)
	Cached() []int
	Current() int
}

type Web struct {
	tpl     *template.Template
	book    Book
	sched   Scheduler
	session string
}

func New(book Book, sched Scheduler) *Web {
	tpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
	return &Web{
		tpl:     tpl,
		book:    book,
		sched:   sched,
		session: uuid.NewString(),
	}
}

// Session identifies this viewer instance in logs and the book API.
func (w *Web) Session() string { return w.session }

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", w.handleRoot)
	mux.HandleFunc("/viewer", w.handleViewer)
	mux.HandleFunc("/api/book", w.handleBook)
	mux.HandleFunc("/api/pages/", w.handlePage)
	mux.HandleFunc("/api/navigate", w.handleNavigate)
	mux.HandleFunc("/healthz", w.handleHealth)
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
	_ = w.tpl.ExecuteTemplate(wr, name, data)
}

func (w *Web) writeJSON(wr http.ResponseWriter, status int, data any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	_ = json.NewEncoder(wr).Encode(data)
}

func (w *Web) handleRoot(wr http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(wr, r)
		return
	}
	http.Redirect(wr, r, "/viewer", http.StatusSeeOther)
}

func (w *Web) handleViewer(wr http.ResponseWriter, r *http.Request) {
	dims, _ := w.book.Dimensions()
	w.render(wr, "viewer.html", map[string]any{
		"Session":   w.session,
		"PageCount": w.book.SlotCount(),
		"Width":     dims.Width,
		"Height":    dims.Height,
	})
}

func (w *Web) handleBook(wr http.ResponseWriter, r *http.Request) {
	dims, known := w.book.Dimensions()
	w.writeJSON(wr, http.StatusOK, map[string]any{
		"session_id": w.session,
		"page_count": w.book.SlotCount(),
		"width":      dims.Width,
		"height":     dims.Height,
		"aspect":     dims.Aspect,
		"dims_known": known,
		"current":    w.sched.Current(),
	})
}

// handlePage serves the rendered image for one slot, or reports that it is
// not available yet. The viewport polls pending slots.
func (w *Web) handlePage(wr http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/pages/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(wr, "invalid page index", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= w.book.SlotCount() {
		http.Error(wr, "page index out of range", http.StatusBadRequest)
		return
	}

	payload, ok := w.sched.Payload(index)
	if !ok {
		metrics.IncPageRequest("pending")
		w.writeJSON(wr, http.StatusAccepted, map[string]any{"state": "pending", "index": index})
		return
	}

	data, err := payload.Bytes()
	if err != nil {
		log.Error().Err(err).Int("slot", index).Msg("failed to read cached page image")
		http.Error(wr, "page image unavailable", http.StatusInternalServerError)
		return
	}
	metrics.IncPageRequest("hit")
	wr.Header().Set("Content-Type", "image/jpeg")
	wr.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = wr.Write(data)
}

func (w *Web) handleNavigate(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(wr, "invalid body", http.StatusBadRequest)
		return
	}
	if err := w.sched.OnNavigate(r.Context(), body.Index); err != nil {
		log.Error().Err(err).Int("index", body.Index).Msg("navigation failed")
		http.Error(wr, "navigation failed", http.StatusInternalServerError)
		return
	}
	w.writeJSON(wr, http.StatusOK, map[string]any{
		"current": w.sched.Current(),
		"cached":  w.sched.Cached(),
	})
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
	w.writeJSON(wr, http.StatusOK, map[string]any{"status": "ok", "session_id": w.session})
}
