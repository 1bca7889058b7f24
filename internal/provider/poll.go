package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskStatus represents the status of an async upstream task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// AsyncTask is one poll observation of an upstream task.
type AsyncTask struct {
	ID     string
	Status TaskStatus
	Result *Response
	Error  error
}

// PollConfig contains polling configuration for async providers.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollConfig suits slow video backends.
var DefaultPollConfig = PollConfig{
	Interval:    5 * time.Second,
	MaxAttempts: 120, // 10 minutes at 5s
}

// ReplicatePollConfig suits Replicate's fast image predictions.
var ReplicatePollConfig = PollConfig{
	Interval:    2 * time.Second,
	MaxAttempts: 90,
}

// TaskPoller checks the current status of an upstream task.
type TaskPoller interface {
	Poll(ctx context.Context, taskID string) (*AsyncTask, error)
}

// WaitForTask polls a task until it reaches a terminal status or the attempt
// budget is exhausted.
func WaitForTask(ctx context.Context, poller TaskPoller, taskID string, config PollConfig) (*Response, error) {
	if taskID == "" {
		return nil, errors.New("task ID is required")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollConfig.Interval
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollConfig.MaxAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-ticker.C:
			attempts++

			task, err := poller.Poll(ctx, taskID)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"task_id": taskID,
					"attempt": attempts,
					"error":   err,
				}).Warn("provider: poll error")
				return nil, err
			}

			logrus.WithFields(logrus.Fields{
				"task_id": taskID,
				"status":  task.Status,
				"attempt": attempts,
			}).Debug("provider: poll status")

			switch task.Status {
			case TaskStatusSucceeded:
				return task.Result, nil

			case TaskStatusFailed:
				if task.Error != nil {
					return nil, task.Error
				}
				return nil, errors.New("task failed without error message")

			case TaskStatusCancelled:
				return nil, errors.New("task was cancelled")

			default:
				if attempts >= maxAttempts {
					return nil, errors.New("polling exceeded maximum attempts")
				}
			}
		}
	}
}

// MapTaskStatus maps provider-specific status strings to TaskStatus.
func MapTaskStatus(status string) TaskStatus {
	switch toLowerASCII(status) {
	case "pending", "queued", "in_queue", "created", "submitted", "starting":
		return TaskStatusPending
	case "running", "processing", "in_progress", "started":
		return TaskStatusRunning
	case "succeeded", "success", "succeed", "completed", "done", "ok":
		return TaskStatusSucceeded
	case "failed", "failure", "error":
		return TaskStatusFailed
	case "cancelled", "canceled", "aborted", "stopped":
		return TaskStatusCancelled
	default:
		return TaskStatusRunning
	}
}

// toLowerASCII converts ASCII letters to lowercase without allocating when
// already lowercase.
func toLowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
