package board

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"spaplan/internal/catalog"
	"spaplan/internal/domain"
)

// Container id conventions shared with the presentation layer.
const BacklogID = "backlog"

func WorkerContainerID(workerID string) string { return "worker-" + workerID }

// WorkerIDFromContainer extracts the worker id from a "worker-<id>" container
// id. Returns false for the backlog or any other id.
func WorkerIDFromContainer(containerID string) (string, bool) {
	wid, ok := strings.CutPrefix(containerID, "worker-")
	if !ok || wid == "" {
		return "", false
	}
	return wid, true
}

// WorkerQueue is the ordered task list of one worker. Order is chronological
// execution order; the layout engine packs it back-to-back.
type WorkerQueue struct {
	WorkerID string        `json:"worker_id"`
	Tasks    []domain.Task `json:"tasks"`
}

// Schedule is the aggregate root: the authoritative assignment of every task
// to exactly one container. All mutating methods are all-or-nothing; callers
// wanting concurrent access must serialize mutations per Schedule.
type Schedule struct {
	Seq     int           `json:"seq"`
	Queues  []WorkerQueue `json:"workers"`
	Backlog []domain.Task `json:"backlog,omitempty"`
}

// New returns an empty schedule with one queue per catalog worker, in
// catalog order.
func New(cat *catalog.Catalog) *Schedule {
	s := &Schedule{Queues: make([]WorkerQueue, 0, len(cat.Workers))}
	for _, w := range cat.Workers {
		s.Queues = append(s.Queues, WorkerQueue{WorkerID: w.ID, Tasks: []domain.Task{}})
	}
	return s
}

// Clone returns a deep copy, used for snapshot reads while a mutation may
// follow on the original.
func (s *Schedule) Clone() *Schedule {
	c := &Schedule{Seq: s.Seq, Queues: make([]WorkerQueue, len(s.Queues)), Backlog: slices.Clone(s.Backlog)}
	for i, q := range s.Queues {
		c.Queues[i] = WorkerQueue{WorkerID: q.WorkerID, Tasks: slices.Clone(q.Tasks)}
	}
	return c
}

func (s *Schedule) TaskCount() int {
	n := len(s.Backlog)
	for _, q := range s.Queues {
		n += len(q.Tasks)
	}
	return n
}

// AddTask validates, assigns the next "t<seq>" id and appends the new task
// to the worker's queue. The fresh id is returned.
func (s *Schedule) AddTask(cat *catalog.Catalog, customer, serviceID, workerID string) (string, error) {
	if strings.TrimSpace(customer) == "" {
		return "", domain.Validationf("customer is required")
	}
	if _, ok := cat.Service(serviceID); !ok {
		return "", domain.Validationf("unknown service %q", serviceID)
	}
	if _, ok := cat.Worker(workerID); !ok {
		return "", domain.Validationf("unknown worker %q", workerID)
	}
	tasks, ok := s.container(WorkerContainerID(workerID))
	if !ok {
		return "", domain.Validationf("worker %q has no queue on this board", workerID)
	}
	s.Seq++
	id := fmt.Sprintf("t%d", s.Seq)
	*tasks = append(*tasks, domain.Task{ID: id, Customer: customer, ServiceID: serviceID})
	return id, nil
}

// RemoveTask takes the task out of whichever container holds it, searching
// worker queues in catalog order and the backlog last.
func (s *Schedule) RemoveTask(taskID string) (domain.Task, error) {
	cid, pos, ok := s.find(taskID)
	if !ok {
		return domain.Task{}, &domain.NotFoundError{TaskID: taskID}
	}
	return s.removeAt(cid, pos), nil
}

// InsertTask puts the task into the destination container at
// clamp(index, 0, len). Out-of-range indexes mean prepend/append, never an
// error; an unknown container is one.
func (s *Schedule) InsertTask(task domain.Task, containerID string, index int) error {
	tasks, ok := s.container(containerID)
	if !ok {
		return domain.Validationf("unknown container %q", containerID)
	}
	index = clamp(index, 0, len(*tasks))
	*tasks = slices.Insert(*tasks, index, task)
	return nil
}

// TaskPatch replaces fields wholesale; nil leaves a field alone.
type TaskPatch struct {
	Customer  *string
	ServiceID *string
}

// EditTask updates the task in place without changing its position.
func (s *Schedule) EditTask(cat *catalog.Catalog, taskID string, patch TaskPatch) error {
	if patch.Customer != nil && strings.TrimSpace(*patch.Customer) == "" {
		return domain.Validationf("customer is required")
	}
	if patch.ServiceID != nil {
		if _, ok := cat.Service(*patch.ServiceID); !ok {
			return domain.Validationf("unknown service %q", *patch.ServiceID)
		}
	}
	cid, pos, ok := s.find(taskID)
	if !ok {
		return &domain.NotFoundError{TaskID: taskID}
	}
	tasks, _ := s.container(cid)
	if patch.Customer != nil {
		(*tasks)[pos].Customer = *patch.Customer
	}
	if patch.ServiceID != nil {
		(*tasks)[pos].ServiceID = *patch.ServiceID
	}
	return nil
}

// PositionSignal is where a moved task should land: an explicit index, or a
// point in time on the destination worker's timeline. Exactly one is set.
type PositionSignal struct {
	Index *int
	At    *time.Time
}

// MoveTask relocates a task: remove from its current container, derive the
// insertion index against the post-removal destination, insert. Computing
// the index after removal means a task dropped back into its own queue never
// counts itself when picking its new slot.
func (s *Schedule) MoveTask(cat *catalog.Catalog, taskID, containerID string, sig PositionSignal, anchor time.Time, slotMin int) error {
	if _, ok := s.container(containerID); !ok {
		return domain.Validationf("unknown container %q", containerID)
	}
	var destWorker string
	switch {
	case sig.Index == nil && sig.At == nil:
		return domain.Validationf("position signal needs an index or a timestamp")
	case sig.Index != nil && sig.At != nil:
		return domain.Validationf("position signal cannot carry both an index and a timestamp")
	case sig.At != nil:
		wid, ok := WorkerIDFromContainer(containerID)
		if !ok {
			return domain.Validationf("timestamp signal needs a worker queue destination")
		}
		destWorker = wid
	}

	cid, pos, ok := s.find(taskID)
	if !ok {
		return &domain.NotFoundError{TaskID: taskID}
	}
	task := s.removeAt(cid, pos)

	index := 0
	if sig.Index != nil {
		index = *sig.Index
	} else {
		intervals, err := WorkerLayout(s, cat, destWorker, anchor, slotMin)
		if err != nil {
			// Put the task back where it was so an integrity failure does
			// not also lose it.
			_ = s.insertAt(cid, pos, task)
			return err
		}
		index = insertionIndexAt(intervals, *sig.At)
	}
	return s.InsertTask(task, containerID, index)
}

// container returns a pointer to the task slice addressed by a container id.
func (s *Schedule) container(containerID string) (*[]domain.Task, bool) {
	if containerID == BacklogID {
		return &s.Backlog, true
	}
	wid, ok := WorkerIDFromContainer(containerID)
	if !ok {
		return nil, false
	}
	for i := range s.Queues {
		if s.Queues[i].WorkerID == wid {
			return &s.Queues[i].Tasks, true
		}
	}
	return nil, false
}

// find locates a task. Search order is fixed: worker queues first, in
// catalog order, then the backlog.
func (s *Schedule) find(taskID string) (containerID string, pos int, ok bool) {
	for i := range s.Queues {
		for j, t := range s.Queues[i].Tasks {
			if t.ID == taskID {
				return WorkerContainerID(s.Queues[i].WorkerID), j, true
			}
		}
	}
	for j, t := range s.Backlog {
		if t.ID == taskID {
			return BacklogID, j, true
		}
	}
	return "", 0, false
}

func (s *Schedule) removeAt(containerID string, pos int) domain.Task {
	tasks, _ := s.container(containerID)
	task := (*tasks)[pos]
	*tasks = slices.Delete(*tasks, pos, pos+1)
	return task
}

func (s *Schedule) insertAt(containerID string, pos int, task domain.Task) error {
	return s.InsertTask(task, containerID, pos)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
