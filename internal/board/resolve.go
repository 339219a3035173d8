package board

import (
	"errors"
	"time"

	"spaplan/internal/catalog"
	"spaplan/internal/domain"
)

// ErrIgnoreDrop marks a drop payload that should be silently discarded:
// missing fields, an unparsable timestamp, an unknown destination. These are
// drops onto non-target areas of the UI, not user errors.
var ErrIgnoreDrop = errors.New("drop ignored")

// TimelineDrop is the payload a Gantt-style drag handler emits: the bar that
// was dragged, the row it landed on and the point in time under the cursor.
type TimelineDrop struct {
	TaskID     string `json:"task_id"`
	WorkerName string `json:"worker_name"`
	Timestamp  string `json:"timestamp"`
}

// ListDrop is the payload a list-reordering drag handler emits.
type ListDrop struct {
	TaskID            string `json:"task_id"`
	SourceListID      string `json:"source_list_id"`
	DestinationListID string `json:"destination_list_id"`
	NewIndex          int    `json:"new_index"`
}

// insertionIndexAt counts intervals whose start is at or before the drop
// point: the task goes after every task already running by then. A drop
// exactly on a start ties toward inserting after that task.
func insertionIndexAt(intervals []domain.Interval, at time.Time) int {
	n := 0
	for _, iv := range intervals {
		if !iv.Start.After(at) {
			n++
		}
	}
	return n
}

// ApplyTimelineDrop resolves a timeline drop and moves the task. Any payload
// that does not resolve to a valid move returns ErrIgnoreDrop with the
// schedule untouched.
func (s *Schedule) ApplyTimelineDrop(cat *catalog.Catalog, drop TimelineDrop, anchor time.Time, slotMin int) error {
	if drop.TaskID == "" || drop.WorkerName == "" || drop.Timestamp == "" {
		return ErrIgnoreDrop
	}
	at, err := time.Parse(time.RFC3339, drop.Timestamp)
	if err != nil {
		return ErrIgnoreDrop
	}
	worker, ok := cat.WorkerByName(drop.WorkerName)
	if !ok {
		return ErrIgnoreDrop
	}
	sig := PositionSignal{At: &at}
	if err := s.MoveTask(cat, drop.TaskID, WorkerContainerID(worker.ID), sig, anchor, slotMin); err != nil {
		var nf *domain.NotFoundError
		var ve *domain.ValidationError
		if errors.As(err, &nf) || errors.As(err, &ve) {
			return ErrIgnoreDrop
		}
		return err
	}
	return nil
}

// ApplyListDrop resolves a list drop and moves the task to the given index.
// The source list id is informational; the task is located by id.
func (s *Schedule) ApplyListDrop(cat *catalog.Catalog, drop ListDrop) error {
	if drop.TaskID == "" || drop.DestinationListID == "" {
		return ErrIgnoreDrop
	}
	index := drop.NewIndex
	sig := PositionSignal{Index: &index}
	if err := s.MoveTask(cat, drop.TaskID, drop.DestinationListID, sig, time.Time{}, DefaultSlotMin); err != nil {
		var nf *domain.NotFoundError
		var ve *domain.ValidationError
		if errors.As(err, &nf) || errors.As(err, &ve) {
			return ErrIgnoreDrop
		}
		return err
	}
	return nil
}
