package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/onkernel/bagctl/lib/bag"
	"github.com/onkernel/bagctl/lib/logger"
	"github.com/onkernel/bagctl/lib/player"
)

type ApiService struct {
	factory player.Factory

	// Playback session management
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id      string
	created time.Time
	player  *player.Player
}

func New(factory player.Factory) (*ApiService, error) {
	if factory == nil {
		return nil, errors.New("player factory is required")
	}
	return &ApiService{
		factory:  factory,
		sessions: make(map[string]*session),
	}, nil
}

// Routes registers the playback endpoints on r.
func (s *ApiService) Routes(r chi.Router) {
	r.Route("/playbacks", func(r chi.Router) {
		r.Get("/", s.ListPlaybacks)
		r.Post("/", s.StartPlayback)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetPlayback)
			r.Delete("/", s.DeletePlayback)
			r.Post("/pause", s.control("pause", (*player.Player).Pause))
			r.Post("/resume", s.control("resume", (*player.Player).Resume))
			r.Post("/step", s.control("step", (*player.Player).Step))
			r.Post("/stop", s.StopPlayback)
		})
	})
}

type StartPlaybackRequest struct {
	Recordings []string        `json:"recordings"`
	Options    *player.Options `json:"options,omitempty"`
}

type PlaybackStatus struct {
	ID         string     `json:"id"`
	Recordings []string   `json:"recordings"`
	Args       []string   `json:"args"`
	State      string     `json:"state"`
	Running    bool       `json:"running"`
	PID        int        `json:"pid,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// Start a playback session
// (POST /playbacks)
func (s *ApiService) StartPlayback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var body StartPlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := s.factory(bag.Files(body.Recordings))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts player.Options
	if body.Options != nil {
		opts = *body.Options
	}
	// the handler must not block on playback
	opts.Wait = false

	// the child outlives the request
	if err := p.Play(context.WithoutCancel(r.Context()), opts); err != nil {
		log.Error("failed to start playback", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to start playback")
		return
	}

	sess := &session{id: uuid.New().String(), created: time.Now(), player: p}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Info("playback started", "id", sess.id, "recordings", p.Recordings().String())
	writeJSON(w, http.StatusCreated, sess.status())
}

// List playback sessions, oldest first
// (GET /playbacks)
func (s *ApiService) ListPlaybacks(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })
	out := make([]PlaybackStatus, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.status())
	}
	writeJSON(w, http.StatusOK, out)
}

// (GET /playbacks/{id})
func (s *ApiService) GetPlayback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.status())
}

// control adapts a keystroke command to a handler.
func (s *ApiService) control(action string, fn func(*player.Player) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		sess, ok := s.lookup(w, r)
		if !ok {
			return
		}
		if !sess.player.IsRunning() {
			writeError(w, http.StatusConflict, (&bag.NotRunningError{Action: action}).Error())
			return
		}
		if err := fn(sess.player); err != nil {
			if errors.Is(err, bag.ErrNotRunning) || errors.Is(err, bag.ErrStdinNotPiped) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			log.Error("failed to send playback command", "id", sess.id, "action", action, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to "+action+" playback")
			return
		}
		log.Info("playback command sent", "id", sess.id, "action", action)
		writeJSON(w, http.StatusOK, OkResponse{Ok: true})
	}
}

// (POST /playbacks/{id}/stop)
func (s *ApiService) StopPlayback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !sess.player.IsRunning() {
		writeError(w, http.StatusConflict, (&bag.NotRunningError{Action: "stop"}).Error())
		return
	}
	if err := sess.player.Stop(context.WithoutCancel(r.Context())); err != nil {
		log.Error("failed to stop playback", "id", sess.id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to stop playback")
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

// (DELETE /playbacks/{id})
func (s *ApiService) DeletePlayback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.player.IsRunning() {
		if err := sess.player.Stop(context.WithoutCancel(r.Context())); err != nil {
			log.Error("failed to stop playback", "id", sess.id, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to stop playback")
			return
		}
	}
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// Shutdown stops every running session.
func (s *ApiService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	players := make([]*player.Player, 0, len(s.sessions))
	for _, sess := range s.sessions {
		players = append(players, sess.player)
	}
	s.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range players {
		if !p.IsRunning() {
			continue
		}
		g.Go(func() error {
			return p.Stop(ctx)
		})
	}
	return g.Wait()
}

func (s *ApiService) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "id")
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "playback not found")
		return nil, false
	}
	return sess, true
}

func (sess *session) status() PlaybackStatus {
	p := sess.player
	st := PlaybackStatus{
		ID:         sess.id,
		Recordings: p.Recordings().Files(),
		Args:       p.Args(),
		State:      p.State().String(),
		Running:    p.IsRunning(),
	}
	if st.Args == nil {
		st.Args = []string{}
	}
	if md := p.Metadata(); md != nil {
		st.PID = md.PID
		started := md.StartTime
		st.StartedAt = &started
		if !md.EndTime.IsZero() {
			ended := md.EndTime
			st.EndedAt = &ended
		}
	}
	if code, ok := p.ExitCode(); ok {
		st.ExitCode = &code
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Message: msg})
}
