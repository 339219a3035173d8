package board

import (
	"time"

	"spaplan/internal/catalog"
	"spaplan/internal/domain"
)

// DefaultSlotMin is the slot granularity the day start is rounded up to.
const DefaultSlotMin = 15

// RoundUpToSlot rounds t up to the next multiple of slotMin minutes. An
// anchor already on a slot boundary with no sub-minute component is used
// as-is.
func RoundUpToSlot(t time.Time, slotMin int) time.Time {
	if slotMin <= 0 {
		slotMin = DefaultSlotMin
	}
	r := t.Minute() % slotMin
	if r == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	return t.Add(time.Duration(slotMin-r)*time.Minute -
		time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond()))
}

// Layout projects the schedule onto a timeline: each worker's queue is
// packed back-to-back from the rounded anchor, with zero idle time between
// tasks. Workers are laid out independently of one another. The result is a
// pure function of (schedule, catalog, anchor, slotMin).
func Layout(s *Schedule, cat *catalog.Catalog, anchor time.Time, slotMin int) ([]domain.Interval, error) {
	out := make([]domain.Interval, 0, s.TaskCount())
	for i := range s.Queues {
		intervals, err := queueLayout(&s.Queues[i], cat, anchor, slotMin)
		if err != nil {
			return nil, err
		}
		out = append(out, intervals...)
	}
	return out, nil
}

// WorkerLayout lays out a single worker's queue. The reorder resolver uses
// it to place timestamp drops without computing the whole board.
func WorkerLayout(s *Schedule, cat *catalog.Catalog, workerID string, anchor time.Time, slotMin int) ([]domain.Interval, error) {
	for i := range s.Queues {
		if s.Queues[i].WorkerID == workerID {
			return queueLayout(&s.Queues[i], cat, anchor, slotMin)
		}
	}
	return nil, nil
}

func queueLayout(q *WorkerQueue, cat *catalog.Catalog, anchor time.Time, slotMin int) ([]domain.Interval, error) {
	worker, ok := cat.Worker(q.WorkerID)
	if !ok {
		return nil, &domain.IntegrityError{Ref: "worker " + q.WorkerID}
	}
	cursor := RoundUpToSlot(anchor, slotMin)
	intervals := make([]domain.Interval, 0, len(q.Tasks))
	for _, t := range q.Tasks {
		svc, ok := cat.Service(t.ServiceID)
		if !ok {
			return nil, &domain.IntegrityError{TaskID: t.ID, Ref: "service " + t.ServiceID}
		}
		finish := cursor.Add(time.Duration(svc.DurationMin) * time.Minute)
		intervals = append(intervals, domain.Interval{
			TaskID:      t.ID,
			WorkerID:    worker.ID,
			Worker:      worker.Name,
			Customer:    t.Customer,
			Service:     svc.Name,
			Start:       cursor,
			Finish:      finish,
			DurationMin: svc.DurationMin,
		})
		cursor = finish
	}
	return intervals, nil
}
