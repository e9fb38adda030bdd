package core

import (
	"context"
	"time"
)

// Hook runs around a step's action.
type Hook func(ctx context.Context, step Step)

// Step is one named unit of the reindex migration.
type Step struct {
	Name        string
	Description string
	Before      []Hook
	Action      func(ctx context.Context) error
	After       []Hook
	// RollbackOnFailure marks the one step whose failure is undone
	RollbackOnFailure bool
}

// step builds a Step with the standard logging hooks.
func (o *Orchestrator) step(name, description string, action func(ctx context.Context) error) Step {
	return Step{
		Name:        name,
		Description: description,
		Before:      []Hook{o.logStepStart},
		Action:      action,
		After:       []Hook{o.logStepDone},
	}
}

func (o *Orchestrator) logStepStart(_ context.Context, s Step) {
	o.stepStarted = time.Now()
	o.logger.Info("starting "+s.Name, "migration", o.plan.ID, "step", s.Name, "description", s.Description)
}

func (o *Orchestrator) logStepDone(_ context.Context, s Step) {
	o.logger.Info("completed "+s.Name, "migration", o.plan.ID, "step", s.Name,
		"elapsed", time.Since(o.stepStarted).Round(time.Millisecond))
}

// runSteps executes steps strictly in order and stops at the first failure.
func (o *Orchestrator) runSteps(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		for _, h := range s.Before {
			h(ctx, s)
		}
		if err := s.Action(ctx); err != nil {
			return o.fail(ctx, s, err)
		}
		for _, h := range s.After {
			h(ctx, s)
		}
	}
	return nil
}

// fail reports a failed step, rolling back first when the step asks for it.
func (o *Orchestrator) fail(ctx context.Context, s Step, err error) error {
	o.logger.Error(s.Name+" failed", "migration", o.plan.ID, "step", s.Name, "error", err)

	stepErr := &StepError{Step: s.Name, Err: err}
	if s.RollbackOnFailure {
		if rbErr := o.rollback(ctx); rbErr != nil {
			stepErr.RollbackErr = rbErr
		} else {
			stepErr.RolledBack = true
		}
	}
	stepErr.Plan = *o.plan
	return stepErr
}
