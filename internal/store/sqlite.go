package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"spaplan/internal/board"
	"spaplan/internal/catalog"
)

var ErrBoardNotFound = errors.New("board not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS boards (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  state BLOB NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

// BoardInfo is the listing view of a board.
type BoardInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tasks     int       `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	mu       sync.Mutex
	info     BoardInfo
	sched    *board.Schedule
	accessed time.Time
}

// Registry keeps every live board in memory and writes each board's state
// through to sqlite after every successful mutation. The schedule itself
// stays an in-memory value; the database is just the outer persistence
// layer for boards between restarts.
type Registry struct {
	db  *sql.DB
	cat *catalog.Catalog

	mu     sync.RWMutex
	boards map[string]*entry
}

func NewRegistry(db *sql.DB, cat *catalog.Catalog) *Registry {
	return &Registry{db: db, cat: cat, boards: make(map[string]*entry)}
}

// Load pulls every persisted board into memory. Call once at startup.
func (r *Registry) Load(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,name,state,created_at,updated_at FROM boards`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for rows.Next() {
		var info BoardInfo
		var blob []byte
		if err := rows.Scan(&info.ID, &info.Name, &blob, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return n, err
		}
		var sched board.Schedule
		if err := json.Unmarshal(blob, &sched); err != nil {
			return n, err
		}
		info.Tasks = sched.TaskCount()
		r.boards[info.ID] = &entry{info: info, sched: &sched, accessed: time.Now()}
		n++
	}
	return n, rows.Err()
}

// Create makes a new empty board and persists it.
func (r *Registry) Create(ctx context.Context, name string) (BoardInfo, error) {
	id := "brd_" + uuid.NewString()
	if name == "" {
		name = id
	}
	sched := board.New(r.cat)
	if err := r.persist(ctx, id, name, sched); err != nil {
		return BoardInfo{}, err
	}
	now := time.Now()
	info := BoardInfo{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.boards[id] = &entry{info: info, sched: sched, accessed: now}
	r.mu.Unlock()
	return info, nil
}

func (r *Registry) List() []BoardInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BoardInfo, 0, len(r.boards))
	for _, e := range r.boards {
		e.mu.Lock()
		info := e.info
		info.Tasks = e.sched.TaskCount()
		e.mu.Unlock()
		out = append(out, info)
	}
	return out
}

func (r *Registry) Info(id string) (BoardInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return BoardInfo{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info := e.info
	info.Tasks = e.sched.TaskCount()
	return info, nil
}

// Snapshot returns a consistent deep copy of the board's schedule, safe to
// lay out while later mutations proceed.
func (r *Registry) Snapshot(id string) (*board.Schedule, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accessed = time.Now()
	return e.sched.Clone(), nil
}

// Mutate runs fn against a working copy of the board's schedule under the
// board's lock. Only if fn succeeds and the new state is persisted does the
// working copy become current, so a failure of either leaves the board
// exactly as it was.
func (r *Registry) Mutate(ctx context.Context, id string, fn func(*board.Schedule) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	work := e.sched.Clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := r.persist(ctx, e.info.ID, e.info.Name, work); err != nil {
		return err
	}
	e.sched = work
	e.info.UpdatedAt = time.Now()
	e.accessed = e.info.UpdatedAt
	return nil
}

// Reset replaces the board with a fresh empty schedule.
func (r *Registry) Reset(ctx context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fresh := board.New(r.cat)
	if err := r.persist(ctx, e.info.ID, e.info.Name, fresh); err != nil {
		return err
	}
	e.sched = fresh
	e.info.UpdatedAt = time.Now()
	e.accessed = e.info.UpdatedAt
	return nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boards[id]; !ok {
		return ErrBoardNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id); err != nil {
		return err
	}
	delete(r.boards, id)
	return nil
}

// SweepIdle drops boards with no reads or writes for longer than ttl.
// Returns how many were removed.
func (r *Registry) SweepIdle(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.boards {
		e.mu.Lock()
		idle := e.accessed.Before(cutoff)
		e.mu.Unlock()
		if !idle {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id); err != nil {
			return n, err
		}
		delete(r.boards, id)
		n++
	}
	return n, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.boards[id]
	if !ok {
		return nil, ErrBoardNotFound
	}
	return e, nil
}

func (r *Registry) persist(ctx context.Context, id, name string, s *board.Schedule) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO boards (id,name,state,created_at,updated_at)
VALUES (?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET state=excluded.state, updated_at=CURRENT_TIMESTAMP
`, id, name, blob)
	return err
}
