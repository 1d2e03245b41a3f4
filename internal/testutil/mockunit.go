// Package testutil provides a mock Load Unit shared by the internal test
// suites.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnrjke/readygate/internal/unit"
)

// StepFunc is invoked once per Step call; returning (unit.StepDone, nil)
// ends the unit's work.
type StepFunc func(ctx context.Context, call int) (unit.StepResult, error)

// MockUnit is a configurable unit.Load for tests.
type MockUnit struct {
	id          string
	phase       unit.Phase
	required    bool
	cost        unit.Cost
	steps       StepFunc
	validator   func(ctx context.Context) (bool, error)
	hasValidate bool

	recoverAtCall int
	recoverFrames int

	mu        sync.Mutex
	disposed  bool
	stepCalls int
}

// NewMockUnit builds a MockUnit that completes after stepCount Step calls.
func NewMockUnit(id string, phase unit.Phase, required bool, cost unit.Cost, stepCount int) *MockUnit {
	remaining := stepCount
	return &MockUnit{
		id:       id,
		phase:    phase,
		required: required,
		cost:     cost,
		steps: func(ctx context.Context, call int) (unit.StepResult, error) {
			remaining--
			if remaining <= 0 {
				return unit.StepDone, nil
			}
			return unit.StepYield, nil
		},
	}
}

// WithSteps overrides the step function entirely.
func (m *MockUnit) WithSteps(fn StepFunc) *MockUnit {
	m.steps = fn
	return m
}

// WithValidator attaches a post-load validator.
func (m *MockUnit) WithValidator(fn func(ctx context.Context) (bool, error)) *MockUnit {
	m.validator = fn
	m.hasValidate = true
	return m
}

// WithRecoveryAfterCall makes the unit call RequestRecoveryFrames(frames)
// on its execution context right after the given Step call number,
// simulating a unit recovering from an uncooperative blocking call.
func (m *MockUnit) WithRecoveryAfterCall(call, frames int) *MockUnit {
	m.recoverAtCall = call
	m.recoverFrames = frames
	return m
}

func (m *MockUnit) ID() string             { return m.id }
func (m *MockUnit) TargetPhase() unit.Phase { return m.phase }
func (m *MockUnit) RequiredForReady() bool  { return m.required }
func (m *MockUnit) CostHint() unit.Cost     { return m.cost }
func (m *MockUnit) HasValidator() bool      { return m.hasValidate }

func (m *MockUnit) Validate(ctx context.Context, scene any) (bool, error) {
	if m.validator == nil {
		return true, nil
	}
	return m.validator(ctx)
}

func (m *MockUnit) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

// Disposed reports whether Dispose was called.
func (m *MockUnit) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *MockUnit) ExecuteSteps(ectx unit.ExecutionContext, scene any, progress unit.ProgressFunc) (unit.Steps, error) {
	if m.steps == nil {
		return nil, fmt.Errorf("mock unit %q has no step function", m.id)
	}
	return &mockSteps{owner: m, ectx: ectx}, nil
}

type mockSteps struct {
	owner *MockUnit
	ectx  unit.ExecutionContext
}

func (m *MockUnit) step(ctx context.Context) (unit.StepResult, int, error) {
	m.mu.Lock()
	m.stepCalls++
	call := m.stepCalls
	m.mu.Unlock()
	result, err := m.steps(ctx, call)
	return result, call, err
}

func (s *mockSteps) Step(ctx context.Context) (unit.StepResult, error) {
	result, call, err := s.owner.step(ctx)
	if err != nil {
		return result, err
	}
	if s.owner.recoverFrames > 0 && call == s.owner.recoverAtCall {
		if rerr := s.ectx.RequestRecoveryFrames(ctx, s.owner.recoverFrames); rerr != nil {
			return result, rerr
		}
	}
	return result, nil
}
