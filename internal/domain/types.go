package domain

import "time"

// Service is a bookable catalog entry with a fixed duration.
type Service struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	DurationMin int    `json:"duration_min" yaml:"duration_min"`
}

// Worker is a catalog entry owning one ordered task queue.
type Worker struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Task is a single booking. Ids are "t<seq>", assigned once and never reused.
type Task struct {
	ID        string `json:"id"`
	Customer  string `json:"customer"`
	ServiceID string `json:"service_id"`
}

// Interval is one laid-out bar of the timeline. Derived on every read,
// never stored.
type Interval struct {
	TaskID      string    `json:"task_id"`
	WorkerID    string    `json:"worker_id"`
	Worker      string    `json:"worker"`
	Customer    string    `json:"customer"`
	Service     string    `json:"service"`
	Start       time.Time `json:"start"`
	Finish      time.Time `json:"finish"`
	DurationMin int       `json:"duration_min"`
}
