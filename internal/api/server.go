package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spaplan/internal/board"
	"spaplan/internal/catalog"
	"spaplan/internal/command"
	"spaplan/internal/domain"
	"spaplan/internal/store"
)

// Config tunes the server. Zero values fall back to the defaults: 09:00 day
// start, 15-minute slots.
type Config struct {
	DayStartHour   int
	DayStartMinute int
	SlotMin        int
	EnableDebug    bool
}

type Server struct {
	r        *chi.Mux
	registry *store.Registry
	cat      *catalog.Catalog
	cfg      Config
}

func NewServer(registry *store.Registry, cat *catalog.Catalog, cfg Config) http.Handler {
	if cfg.DayStartHour == 0 && cfg.DayStartMinute == 0 {
		cfg.DayStartHour = 9
	}
	if cfg.SlotMin <= 0 {
		cfg.SlotMin = board.DefaultSlotMin
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, registry: registry, cat: cat, cfg: cfg}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Get("/api/catalog", s.getCatalog)

	r.Post("/api/boards", s.createBoard)
	r.Get("/api/boards", s.listBoards)
	r.Get("/api/boards/{id}", s.getBoard)
	r.Delete("/api/boards/{id}", s.deleteBoard)
	r.Post("/api/boards/{id}/reset", s.resetBoard)

	r.Post("/api/boards/{id}/tasks", s.addTask)
	r.Patch("/api/boards/{id}/tasks/{taskID}", s.editTask)
	r.Delete("/api/boards/{id}/tasks/{taskID}", s.removeTask)
	r.Post("/api/boards/{id}/tasks/{taskID}/move", s.moveTask)

	r.Post("/api/boards/{id}/drop", s.timelineDrop)
	r.Post("/api/boards/{id}/drop/list", s.listDrop)

	r.Get("/api/boards/{id}/layout", s.getLayout)
	r.Post("/api/boards/{id}/commands", s.applyCommand)

	if cfg.EnableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

// anchor is today's day start, unless the request overrides it.
func (s *Server) anchor(r *http.Request) (time.Time, error) {
	if raw := r.URL.Query().Get("anchor"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad anchor: %w", err)
		}
		return t, nil
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), s.cfg.DayStartHour, s.cfg.DayStartMinute, 0, 0, now.Location()), nil
}

func (s *Server) slot(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("slot")
	if raw == "" {
		return s.cfg.SlotMin, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad slot %q", raw)
	}
	return n, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "spaplan_up 1\nspaplan_boards %d\n", len(s.registry.List()))
}

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"workers":  s.cat.Workers,
		"services": s.cat.Services,
	})
}

type createBoardReq struct {
	Name string `json:"name"`
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
	}
	info, err := s.registry.Create(r.Context(), req.Name)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.registry.List())
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.registry.Info(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	sched, err := s.registry.Snapshot(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"id":      info.ID,
		"name":    info.Name,
		"workers": sched.Queues,
		"backlog": sched.Backlog,
	})
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addTaskReq struct {
	Customer  string `json:"customer"`
	ServiceID string `json:"service_id"`
	WorkerID  string `json:"worker_id"`
}

type addTaskResp struct {
	TaskID string `json:"task_id"`
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var taskID string
	err := s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		var err error
		taskID, err = sched.AddTask(s.cat, req.Customer, req.ServiceID, req.WorkerID)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addTaskResp{TaskID: taskID})
}

type editTaskReq struct {
	Customer  *string `json:"customer"`
	ServiceID *string `json:"service_id"`
}

func (s *Server) editTask(w http.ResponseWriter, r *http.Request) {
	var req editTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	taskID := chi.URLParam(r, "taskID")
	err := s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		return sched.EditTask(s.cat, taskID, board.TaskPatch{Customer: req.Customer, ServiceID: req.ServiceID})
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	err := s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		_, err := sched.RemoveTask(taskID)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveTaskReq struct {
	WorkerID    string `json:"worker_id"`
	ContainerID string `json:"container_id"`
	Index       *int   `json:"index"`
	Timestamp   string `json:"timestamp"`
}

func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	var req moveTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	anchor, err := s.anchor(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	container := req.ContainerID
	if container == "" {
		if req.WorkerID == "" {
			http.Error(w, "worker_id or container_id is required", 400)
			return
		}
		container = board.WorkerContainerID(req.WorkerID)
	}
	sig := board.PositionSignal{Index: req.Index}
	if req.Timestamp != "" {
		at, perr := time.Parse(time.RFC3339, req.Timestamp)
		if perr != nil {
			http.Error(w, "bad timestamp", 400)
			return
		}
		sig = board.PositionSignal{At: &at}
	}
	taskID := chi.URLParam(r, "taskID")
	err = s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		return sched.MoveTask(s.cat, taskID, container, sig, anchor, s.cfg.SlotMin)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// timelineDrop handles Gantt drag gestures. Payloads that do not resolve to
// a valid move are acknowledged and ignored: they are drops outside any
// target, not errors the user can act on.
func (s *Server) timelineDrop(w http.ResponseWriter, r *http.Request) {
	var drop board.TimelineDrop
	if err := json.NewDecoder(r.Body).Decode(&drop); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	anchor, err := s.anchor(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	err = s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		return sched.ApplyTimelineDrop(s.cat, drop, anchor, s.cfg.SlotMin)
	})
	if err != nil && !errors.Is(err, board.ErrIgnoreDrop) {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDrop(w http.ResponseWriter, r *http.Request) {
	var drop board.ListDrop
	if err := json.NewDecoder(r.Body).Decode(&drop); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	err := s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		return sched.ApplyListDrop(s.cat, drop)
	})
	if err != nil && !errors.Is(err, board.ErrIgnoreDrop) {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getLayout(w http.ResponseWriter, r *http.Request) {
	anchor, err := s.anchor(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	slot, err := s.slot(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	sched, err := s.registry.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	intervals, err := board.Layout(sched, s.cat, anchor, slot)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, 200, intervals)
}

type commandResp struct {
	TaskID string `json:"task_id,omitempty"`
}

func (s *Server) applyCommand(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	anchor, err := s.anchor(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var taskID string
	err = s.registry.Mutate(r.Context(), chi.URLParam(r, "id"), func(sched *board.Schedule) error {
		var err error
		taskID, err = command.Apply(s.cat, sched, cmd, anchor, s.cfg.SlotMin)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, 200, commandResp{TaskID: taskID})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errStatus(err))
}

func errStatus(err error) int {
	var ve *domain.ValidationError
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &ve):
		return 400
	case errors.As(err, &nf), errors.Is(err, store.ErrBoardNotFound):
		return 404
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
