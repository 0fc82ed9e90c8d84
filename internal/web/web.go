// Package web serves the appliance's JSON/PNG API: current items, battery
// level, the last rendered frame, and a refresh trigger. It never touches
// the panel; the daemon wires it to the pipeline through small interfaces.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/battery"
	"taskcal/internal/config"
	"taskcal/internal/log"
	"taskcal/internal/model"
)

// Cache lifetimes. Item and battery reads are cheap but not free; the
// panel cadence makes anything fresher than this pointless.
const (
	itemsCacheTTL   = 30 * time.Second
	batteryCacheTTL = 30 * time.Second
)

// ItemsResult is what the pipeline hands the /api/items endpoint.
type ItemsResult struct {
	// WeekStart is the Sunday the items belong to.
	WeekStart time.Time
	// Items are this week's normalized entries.
	Items []model.Item
	// SourceErrors maps source IDs to fetch failures; healthy sources
	// still contribute items.
	SourceErrors map[string]string
	// FetchedAt is when the providers were queried.
	FetchedAt time.Time
}

// Provider produces the current week's items on demand.
type Provider interface {
	Items(ctx context.Context) (ItemsResult, error)
}

// Server is the HTTP API. Build it with NewServer, hand requests to
// Handler, and push frames in with SetPreview.
type Server struct {
	cfg      *config.Config
	provider Provider
	battery  battery.Reader
	refresh  func()
	log      *logrus.Entry
	started  time.Time
	mux      *http.ServeMux

	itemsMu    sync.RWMutex
	itemsCache *itemsCache

	batteryMu    sync.RWMutex
	batteryCache *batteryCache

	previewMu sync.RWMutex
	preview   []byte
	previewAt time.Time
}

type itemsCache struct {
	resp      itemsResponse
	updatedAt time.Time
}

type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

// NewServer builds the API server. provider may be nil (items endpoint
// reports 503), refresh may be nil (trigger endpoint reports 503), a nil
// battery reader falls back to battery.Default, a nil entry to a
// discarding logger.
func NewServer(cfg *config.Config, provider Provider, batt battery.Reader, refresh func(), logger *logrus.Entry) *Server {
	if batt == nil {
		batt = battery.Default()
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		battery:  batt,
		refresh:  refresh,
		log:      logger,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/items", s.handleItems)
	s.mux.HandleFunc("/api/battery", s.handleBattery)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

// Handler returns the routed handler, wrapped with basic auth when the
// config carries credentials.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		s.log.Info("http basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs the server on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.WithField("listen", s.cfg.Listen).Info("http server listening")

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SetPreview stores the latest rendered frame for /preview.png.
func (s *Server) SetPreview(png []byte) {
	s.previewMu.Lock()
	s.preview = png
	s.previewAt = time.Now()
	s.previewMu.Unlock()
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware guards everything except /health, which monitoring
// must always reach.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="taskcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

// itemDTO is the JSON view of one normalized item.
type itemDTO struct {
	Source    string     `json:"source"`
	Title     string     `json:"title"`
	AllDay    bool       `json:"all_day"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	Days      []string   `json:"days"`
	Priority  string     `json:"priority,omitempty"`
	Category  string     `json:"category,omitempty"`
	Completed bool       `json:"completed,omitempty"`
}

type itemsResponse struct {
	WeekStart string            `json:"week_start"`
	Timezone  string            `json:"timezone"`
	Items     []itemDTO         `json:"items"`
	Errors    map[string]string `json:"errors,omitempty"`
	FetchedAt time.Time         `json:"fetched_at"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no item provider configured")
		return
	}

	now := time.Now()
	s.itemsMu.RLock()
	ic := s.itemsCache
	s.itemsMu.RUnlock()
	if ic != nil && now.Sub(ic.updatedAt) < itemsCacheTTL {
		s.writeJSON(w, http.StatusOK, ic.resp)
		return
	}

	res, err := s.provider.Items(r.Context())
	if err != nil {
		s.log.WithError(err).Error("items request failed")
		s.writeError(w, http.StatusInternalServerError, "failed to collect items")
		return
	}

	dtos := make([]itemDTO, 0, len(res.Items))
	for _, it := range res.Items {
		dtos = append(dtos, itemToDTO(it))
	}
	resp := itemsResponse{
		WeekStart: res.WeekStart.Format("2006-01-02"),
		Timezone:  res.WeekStart.Location().String(),
		Items:     dtos,
		Errors:    res.SourceErrors,
		FetchedAt: res.FetchedAt,
	}

	s.itemsMu.Lock()
	s.itemsCache = &itemsCache{resp: resp, updatedAt: time.Now()}
	s.itemsMu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

func itemToDTO(it model.Item) itemDTO {
	dto := itemDTO{
		Source:    it.Source.String(),
		Title:     it.Title,
		AllDay:    it.AllDay,
		Start:     it.Start,
		Days:      make([]string, 0, len(it.DaySpan)),
		Completed: it.Completed,
	}
	if !it.End.IsZero() {
		end := it.End
		dto.End = &end
	}
	for _, d := range it.DaySpan {
		dto.Days = append(dto.Days, d.Format("2006-01-02"))
	}
	switch it.Source {
	case model.SourceTask:
		dto.Priority = it.Priority.String()
	case model.SourceEvent:
		dto.Category = it.Category
	}
	return dto
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		s.writeJSON(w, http.StatusOK, bc.status)
		return
	}

	status, err := s.battery.Read(r.Context())
	if err != nil {
		s.log.WithError(err).Error("battery read failed")
		s.writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: status, updatedAt: time.Now()}
	s.batteryMu.Unlock()

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.refresh == nil {
		s.writeError(w, http.StatusServiceUnavailable, "refresh not wired")
		return
	}
	s.refresh()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.previewMu.RLock()
	png := s.preview
	at := s.previewAt
	s.previewMu.RUnlock()

	if len(png) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	_, _ = w.Write(png)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("write json response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	s.writeJSON(w, status, errResp{Error: msg})
}
