package ergate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepDefaultPathNonVoidGetsNextStep(t *testing.T) {
	wf := NewWorkflow("default-paths")
	step := wf.Step("double", func(ctx context.Context, in int) (int, error) {
		return in * 2, nil
	})
	require.Len(t, step.paths, 1)
	assert.Equal(t, NextStepPath{}, step.paths[0])
}

func TestStepDefaultPathVoidTerminates(t *testing.T) {
	wf := NewWorkflow("default-paths")
	step := wf.Step("notify", func(ctx context.Context, in int) error {
		return nil
	})
	assert.Empty(t, step.paths)
}

func TestStepDefaultPathNoReturnTerminates(t *testing.T) {
	wf := NewWorkflow("default-paths")
	step := wf.Step("log", func(ctx context.Context, in int) {})
	assert.Empty(t, step.paths)
}

func TestStepExplicitPathOverridesDefault(t *testing.T) {
	wf := NewWorkflow("default-paths")
	step := wf.Step("notify", func(ctx context.Context, in int) error {
		return nil
	}, GoToStepPath{Step: "later"})
	wf.Step("later", func(ctx context.Context, in int) error { return nil })
	require.Len(t, step.paths, 1)
	assert.Equal(t, GoToStepPath{Step: "later"}, step.paths[0])
}

func TestStepDuplicateNamePanics(t *testing.T) {
	wf := NewWorkflow("dup")
	wf.Step("once", func(ctx context.Context) error { return nil })
	assert.Panics(t, func() {
		wf.Step("once", func(ctx context.Context) error { return nil })
	})
}

func TestStepAfterFinalizePanics(t *testing.T) {
	wf := NewWorkflow("frozen")
	wf.Step("only", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())
	assert.Panics(t, func() {
		wf.Step("late", func(ctx context.Context) error { return nil })
	})
}

func TestStepNonFunctionPanics(t *testing.T) {
	wf := NewWorkflow("bad")
	assert.Panics(t, func() {
		wf.Step("not-a-func", 42)
	})
}

func TestStepByNameAndSteps(t *testing.T) {
	wf := NewWorkflow("lookup")
	wf.Step("first", func(ctx context.Context) error { return nil })
	wf.Step("second", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())

	got, ok := wf.StepByName("second")
	require.True(t, ok)
	assert.Equal(t, 1, got.Index())
	assert.Equal(t, "second", got.Name())

	_, ok = wf.StepByName("missing")
	assert.False(t, ok)

	assert.Len(t, wf.Steps(), 2)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	wf := NewWorkflow("idempotent")
	wf.Step("only", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())
	require.NoError(t, wf.Finalize())
	assert.True(t, wf.finalized)
}

func TestFinalizePropagatesInvalidDefinition(t *testing.T) {
	wf := NewWorkflow("bad-jump")
	wf.Step("first", func(ctx context.Context) error { return nil }, GoToStepPath{Step: "nope"})
	err := wf.Finalize()
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	assert.ErrorAs(t, err, &invalid)
}
