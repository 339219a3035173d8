// Package command applies already-interpreted user commands to a schedule.
// Parsing free text or voice transcripts into these commands happens
// upstream; by the time a Command arrives here every field is literal.
package command

import (
	"time"

	"spaplan/internal/board"
	"spaplan/internal/catalog"
	"spaplan/internal/domain"
)

type Command struct {
	Action string `json:"action"` // add | move | edit | delete

	// add
	Customer  string `json:"customer,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
	WorkerID  string `json:"worker_id,omitempty"`

	// move / edit / delete
	TaskID string `json:"task_id,omitempty"`

	// move destination: a container id ("backlog", "worker-<id>"), or just
	// a worker id via WorkerID above.
	Destination string `json:"destination,omitempty"`
	Index       *int   `json:"index,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`

	// edit
	NewCustomer  *string `json:"new_customer,omitempty"`
	NewServiceID *string `json:"new_service_id,omitempty"`
}

// Apply executes cmd against the schedule. For "add" the new task id is
// returned. The anchor and slot feed timestamp-positioned moves.
func Apply(cat *catalog.Catalog, s *board.Schedule, cmd Command, anchor time.Time, slotMin int) (string, error) {
	switch cmd.Action {
	case "add":
		return s.AddTask(cat, cmd.Customer, cmd.ServiceID, cmd.WorkerID)
	case "move":
		container := cmd.Destination
		if container == "" {
			if cmd.WorkerID == "" {
				return "", domain.Validationf("move needs a destination")
			}
			container = board.WorkerContainerID(cmd.WorkerID)
		}
		sig := board.PositionSignal{Index: cmd.Index}
		if cmd.Timestamp != "" {
			at, err := time.Parse(time.RFC3339, cmd.Timestamp)
			if err != nil {
				return "", domain.Validationf("bad timestamp %q", cmd.Timestamp)
			}
			sig = board.PositionSignal{At: &at}
		}
		return "", s.MoveTask(cat, cmd.TaskID, container, sig, anchor, slotMin)
	case "edit":
		patch := board.TaskPatch{Customer: cmd.NewCustomer, ServiceID: cmd.NewServiceID}
		return "", s.EditTask(cat, cmd.TaskID, patch)
	case "delete":
		_, err := s.RemoveTask(cmd.TaskID)
		return "", err
	default:
		return "", domain.Validationf("unsupported action %q", cmd.Action)
	}
}
