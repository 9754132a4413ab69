// Package cleaning distributes turnover cleaning tasks over a property's cleaner pool.
package cleaning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/storage/models"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

var (
	ErrMissingProperty   = errors.New("property id is required")
	ErrInvalidRange      = errors.New("from must be before to")
	ErrNoEligibleWorkers = errors.New("no active cleaners for property")
	ErrUnknownPolicy     = errors.New("unknown assignment policy")
)

// Store is the persistence the scheduler needs.
type Store interface {
	ListActiveAssignments(ctx context.Context, propertyID string) ([]models.CleanerAssignment, error)
	ListUnassignedTasks(ctx context.Context, propertyID string, from, to time.Time) ([]models.CleaningTask, error)
	AssignTask(ctx context.Context, taskID, cleanerID string) error
}

// TaskAssignment is one successful write.
type TaskAssignment struct {
	TaskID    string `json:"task_id"`
	CleanerID string `json:"cleaner_id"`
}

// AssignResult summarizes an AutoAssign run.
type AssignResult struct {
	AssignedCount int              `json:"assigned_count"`
	TotalTasks    int              `json:"total_tasks"`
	CleanersUsed  int              `json:"cleaners_used"`
	Assignments   []TaskAssignment `json:"assignments"`
}

// Scheduler assigns unassigned cleaning tasks deterministically.
type Scheduler struct {
	store  Store
	policy string
	events *websocket.EventBroadcaster
	logger *zap.Logger
}

// NewScheduler creates a scheduler. An empty policy means round_robin.
func NewScheduler(store Store, events *websocket.EventBroadcaster, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyRoundRobin
	}
	if policy != PolicyRoundRobin && policy != PolicyWeighted {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, cfg.Policy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:  store,
		policy: policy,
		events: events,
		logger: logger.Named("cleaning"),
	}, nil
}

// AutoAssign assigns every unassigned todo task of propertyID scheduled in [from, to).
// Tasks are walked in scheduled_start order; identical inputs give identical output.
// A failed write is logged and skipped without shifting later tasks. No tasks is a
// successful zero result.
func (s *Scheduler) AutoAssign(ctx context.Context, propertyID string, from, to time.Time) (*AssignResult, error) {
	if propertyID == "" {
		return nil, ErrMissingProperty
	}
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	pool, err := s.store.ListActiveAssignments(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("listing cleaner assignments: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoEligibleWorkers
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Weight != pool[j].Weight {
			return pool[i].Weight > pool[j].Weight
		}
		return pool[i].CleanerID < pool[j].CleanerID
	})

	tasks, err := s.store.ListUnassignedTasks(ctx, propertyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned tasks: %w", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].ScheduledStart.Equal(tasks[j].ScheduledStart) {
			return tasks[i].ScheduledStart.Before(tasks[j].ScheduledStart)
		}
		return tasks[i].ID < tasks[j].ID
	})

	result := &AssignResult{
		TotalTasks:  len(tasks),
		Assignments: make([]TaskAssignment, 0, len(tasks)),
	}
	log := s.logger.With(zap.String("property_id", propertyID), zap.String("policy", s.policy))

	next := s.picker(pool)
	used := make(map[string]struct{}, len(pool))
	for _, task := range tasks {
		cleanerID := next()
		if err := s.store.AssignTask(ctx, task.ID, cleanerID); err != nil {
			log.Warn("assigning task",
				zap.String("task_id", task.ID),
				zap.String("cleaner_id", cleanerID),
				zap.Error(err),
			)
			continue
		}
		result.AssignedCount++
		result.Assignments = append(result.Assignments, TaskAssignment{TaskID: task.ID, CleanerID: cleanerID})
		used[cleanerID] = struct{}{}
	}
	result.CleanersUsed = len(used)

	log.Info("auto-assign finished",
		zap.Int("assigned", result.AssignedCount),
		zap.Int("total", result.TotalTasks),
		zap.Int("cleaners", result.CleanersUsed),
	)
	s.events.CleaningAssigned(websocket.CleaningAssignedPayload{
		PropertyID:    propertyID,
		From:          from,
		To:            to,
		AssignedCount: result.AssignedCount,
		TotalTasks:    result.TotalTasks,
		CleanersUsed:  result.CleanersUsed,
	})

	return result, nil
}

// picker returns a function yielding the cleaner for each successive task.
func (s *Scheduler) picker(pool []models.CleanerAssignment) func() string {
	if s.policy == PolicyWeighted {
		return weightedPicker(pool)
	}
	i := 0
	return func() string {
		id := pool[i%len(pool)].CleanerID
		i++
		return id
	}
}

// weightedPicker is smooth weighted round-robin: each cleaner gets a share of
// tasks proportional to its weight, interleaved rather than in runs. Ties go to
// the earlier cleaner in pool order. Non-positive weights count as 1.
func weightedPicker(pool []models.CleanerAssignment) func() string {
	weights := make([]int, len(pool))
	total := 0
	for i, a := range pool {
		weights[i] = max(a.Weight, 1)
		total += weights[i]
	}
	current := make([]int, len(pool))

	return func() string {
		best := 0
		for i := range current {
			current[i] += weights[i]
			if current[i] > current[best] {
				best = i
			}
		}
		current[best] -= total
		return pool[best].CleanerID
	}
}
