// Package server exposes the read-only dashboard API over the history store.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"redtrack/internal/model"
	"redtrack/internal/tracker"
)

// Server is the dashboard/API layer: pure projections over persisted
// history. It never writes and imposes no invariants of its own; reads
// observe either the pre-poll or fully post-poll state of the store.
type Server struct {
	store    tracker.Store
	service  *tracker.TrackerService
	imageDir string // when set, archived images are served under /images/
	logger   tracker.Logger
}

// New creates a Server over the given store and service. imageDir may be
// empty when media is not archived to the local filesystem.
func New(store tracker.Store, service *tracker.TrackerService, imageDir string, logger tracker.Logger) *Server {
	return &Server{
		store:    store,
		service:  service,
		imageDir: imageDir,
		logger:   logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)
	api.HandleFunc("/karma/{username}", s.handleKarma).Methods(http.MethodGet)
	api.HandleFunc("/karma-changes/{username}", s.handleKarmaChanges).Methods(http.MethodGet)
	api.HandleFunc("/posts/{username}", s.handlePosts).Methods(http.MethodGet)
	api.HandleFunc("/items/{type}/{id}/scores", s.handleScores).Methods(http.MethodGet)
	api.HandleFunc("/subreddits/{username}", s.handleSubreddits).Methods(http.MethodGet)
	api.HandleFunc("/heatmap/{username}", s.handleHeatmap).Methods(http.MethodGet)
	api.HandleFunc("/stats/{username}", s.handleStats).Methods(http.MethodGet)

	if s.imageDir != "" {
		r.PathPrefix("/images/").Handler(
			http.StripPrefix("/images/", http.FileServer(http.Dir(s.imageDir))))
	}
	return r
}

// ListenAndServe runs the dashboard API on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("dashboard listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType string, err error) {
	s.writeJSON(w, status, errorResponse{Type: errType, Msg: err.Error()})
}

type accountOverview struct {
	Username     string     `json:"username"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
	PostKarma    int64      `json:"post_karma"`
	CommentKarma int64      `json:"comment_karma"`
	TotalKarma   int64      `json:"total_karma"`
	PostCount    int        `json:"post_count"`
	CommentCount int        `json:"comment_count"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.Accounts()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "accounts", err)
		return
	}

	overviews := make([]accountOverview, 0, len(accounts))
	for _, account := range accounts {
		ov := accountOverview{Username: account}

		last, err := s.store.LastAccountSnapshot(account)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "accounts", err)
			return
		}
		if last != nil {
			t := last.ObservedAt
			ov.LastUpdated = &t
			ov.PostKarma = last.PostKarma
			ov.CommentKarma = last.CommentKarma
			ov.TotalKarma = last.TotalKarma
		}

		items, err := s.store.Items(account)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "accounts", err)
			return
		}
		for _, item := range items {
			if item.Type == model.ItemTypePost {
				ov.PostCount++
			} else {
				ov.CommentCount++
			}
		}
		overviews = append(overviews, ov)
	}

	s.writeJSON(w, http.StatusOK, overviews)
}

// queryRange resolves a request's time window: an explicit from/to RFC 3339
// pair, or a days=N window ending now (default 30 days).
func queryRange(q url.Values) (from, to time.Time, err error) {
	if q.Get("from") != "" && q.Get("to") != "" {
		from, err = time.Parse(time.RFC3339, q.Get("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, q.Get("to"))
		}
		return from, to, err
	}
	days := 30.0
	if v := q.Get("days"); v != "" {
		parsed, perr := strconv.ParseFloat(v, 64)
		if perr != nil || parsed <= 0 {
			return from, to, errBadDays
		}
		days = parsed
	}
	to = time.Now().UTC()
	from = to.Add(-time.Duration(days * 24 * float64(time.Hour)))
	return from, to, nil
}

// handleKarma returns the karma-over-time series within the requested window.
func (s *Server) handleKarma(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	from, to, err := queryRange(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "karma", err)
		return
	}

	snaps, err := s.store.AccountSnapshotsRange(username, from, to)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "karma", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

type karmaChange struct {
	ObservedAt    time.Time `json:"observed_at"`
	TotalKarma    int64     `json:"total_karma"`
	TotalChange   int64     `json:"total_change"`
	PostChange    int64     `json:"post_change"`
	CommentChange int64     `json:"comment_change"`
}

// handleKarmaChanges returns per-snapshot karma deltas within the requested
// window: each snapshot paired with the change since the previous one. The
// window's first snapshot has no predecessor and produces no entry.
func (s *Server) handleKarmaChanges(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	from, to, err := queryRange(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "karma_changes", err)
		return
	}

	snaps, err := s.store.AccountSnapshotsRange(username, from, to)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "karma_changes", err)
		return
	}

	changes := make([]karmaChange, 0)
	for i := 1; i < len(snaps); i++ {
		changes = append(changes, karmaChange{
			ObservedAt:    snaps[i].ObservedAt,
			TotalKarma:    snaps[i].TotalKarma,
			TotalChange:   snaps[i].TotalKarma - snaps[i-1].TotalKarma,
			PostChange:    snaps[i].PostKarma - snaps[i-1].PostKarma,
			CommentChange: snaps[i].CommentKarma - snaps[i-1].CommentKarma,
		})
	}
	s.writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	items, err := s.store.Items(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "posts", err)
		return
	}

	posts := make([]model.Item, 0)
	for _, item := range items {
		if item.Type == model.ItemTypePost {
			posts = append(posts, item)
		}
	}
	s.writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemType := model.ItemType(vars["type"])
	if itemType != model.ItemTypePost && itemType != model.ItemTypeComment {
		s.writeError(w, http.StatusBadRequest, "scores", errBadItemType)
		return
	}

	entries, err := s.store.ScoreHistory(itemType, vars["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "scores", err)
		return
	}
	if entries == nil {
		entries = []model.ScoreEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type subredditStats struct {
	Subreddit string `json:"subreddit"`
	Items     int    `json:"items"`
	Karma     int64  `json:"karma"`
}

func (s *Server) handleSubreddits(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	items, err := s.store.Items(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "subreddits", err)
		return
	}

	bySub := make(map[string]*subredditStats)
	for _, item := range items {
		st, ok := bySub[item.Subreddit]
		if !ok {
			st = &subredditStats{Subreddit: item.Subreddit}
			bySub[item.Subreddit] = st
		}
		st.Items++
		st.Karma += item.CurrentScore
	}

	out := make([]subredditStats, 0, len(bySub))
	for _, st := range bySub {
		out = append(out, *st)
	}
	sortSubreddits(out)
	s.writeJSON(w, http.StatusOK, out)
}

// handleHeatmap returns activity counts bucketed by weekday and hour of the
// items' creation times.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	items, err := s.store.Items(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "heatmap", err)
		return
	}

	// heatmap[weekday][hour], Sunday = 0
	var heatmap [7][24]int
	for _, item := range items {
		t := item.CreatedAt.UTC()
		heatmap[int(t.Weekday())][t.Hour()]++
	}
	s.writeJSON(w, http.StatusOK, heatmap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	stats, err := s.service.Stats(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats", err)
		return
	}
	if stats == nil {
		s.writeError(w, http.StatusNotFound, "stats", errUnknownAccount)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
