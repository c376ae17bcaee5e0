package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for recurring wallet sweeps.
type Scheduler interface {
	// CreateSweepSchedule creates a new schedule that triggers the
	// SweepWalletsWorkflow on the given interval.
	CreateSweepSchedule(ctx context.Context, name string, input SweepWalletsInput, interval time.Duration) error

	// DeleteSweepSchedule deletes the schedule for a recurring sweep.
	DeleteSweepSchedule(ctx context.Context, name string) error
}

// scheduleID returns the Temporal schedule ID for a named sweep.
func scheduleID(name string) string {
	return "sweep-wallets-" + name
}
