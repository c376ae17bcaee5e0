package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartSweep starts a SweepWalletsWorkflow execution immediately and
// returns its workflow ID.
func (c *Client) StartSweep(ctx context.Context, input SweepWalletsInput) (string, error) {
	workflowID := fmt.Sprintf("sweep-wallets-%d", time.Now().UTC().UnixNano())

	c.logger.Debug("starting sweep workflow",
		"workflow_id", workflowID,
		"wallets", len(input.Owners),
		"dry_run", input.DryRun,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.taskQueue,
	}, "SweepWalletsWorkflow", input)
	if err != nil {
		return "", fmt.Errorf("failed to start sweep workflow: %w", err)
	}

	c.logger.Info("sweep workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	return run.GetID(), nil
}

// CreateSweepSchedule creates a new Temporal schedule for a recurring sweep.
func (c *Client) CreateSweepSchedule(ctx context.Context, name string, input SweepWalletsInput, interval time.Duration) error {
	id := scheduleID(name)

	c.logger.Debug("creating sweep schedule",
		"name", name,
		"schedule_id", id,
		"wallets", len(input.Owners),
		"interval", interval,
	)

	// Create schedule spec
	scheduleSpec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{
			{
				Every: interval,
			},
		},
	}

	// Create workflow action - this will execute the SweepWalletsWorkflow
	workflowAction := client.ScheduleWorkflowAction{
		ID:        fmt.Sprintf("sweep-wallets-%s", name),
		Workflow:  "SweepWalletsWorkflow",
		TaskQueue: c.taskQueue,
		Args:      []interface{}{input},
	}

	// Create the schedule
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     id,
		Spec:   scheduleSpec,
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"sweep_name": name,
			"wallets":    len(input.Owners),
			"dry_run":    input.DryRun,
			"created_by": "walletops",
		},
	})

	if err != nil {
		c.logger.Error("failed to create schedule",
			"name", name,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("sweep schedule created",
		"name", name,
		"schedule_id", id,
		"wallets", len(input.Owners),
		"interval", interval,
	)

	return nil
}

// UpsertSweepSchedule creates or updates a Temporal schedule for a recurring sweep.
// If the schedule already exists, it updates the interval. Otherwise, it creates a new schedule.
func (c *Client) UpsertSweepSchedule(ctx context.Context, name string, input SweepWalletsInput, interval time.Duration) error {
	id := scheduleID(name)

	c.logger.Debug("upserting sweep schedule",
		"name", name,
		"schedule_id", id,
		"interval", interval,
	)

	// Try to get existing schedule
	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	desc, err := handle.Describe(ctx)

	if err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateSweepSchedule(ctx, name, input, interval)
	}

	// Schedule exists - update the interval
	c.logger.Debug("schedule exists, updating interval",
		"schedule_id", id,
		"old_interval", desc.Schedule.Spec.Intervals[0].Every,
		"new_interval", interval,
	)

	// Update the schedule spec with new interval
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			// Update the interval
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})

	if err != nil {
		c.logger.Error("failed to update schedule",
			"name", name,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("sweep schedule updated",
		"name", name,
		"schedule_id", id,
		"interval", interval,
	)

	return nil
}

// DeleteSweepSchedule deletes the Temporal schedule for a recurring sweep.
func (c *Client) DeleteSweepSchedule(ctx context.Context, name string) error {
	id := scheduleID(name)

	c.logger.Debug("deleting sweep schedule",
		"name", name,
		"schedule_id", id,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"name", name,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("sweep schedule deleted",
		"name", name,
		"schedule_id", id,
	)

	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
