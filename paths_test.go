package ergate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumeratePathsLinearChainLength(t *testing.T) {
	wf := NewWorkflow("linear")
	wf.Step("a", func(ctx context.Context) error { return nil }, NextStepPath{})
	wf.Step("b", func(ctx context.Context) error { return nil }, NextStepPath{})
	wf.Step("c", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())

	require.Len(t, wf.paths[0], 1)
	assert.Equal(t, 2, len(wf.paths[0][0].hops))
	require.Len(t, wf.paths[1], 1)
	assert.Equal(t, 1, len(wf.paths[1][0].hops))
}

func TestEnumeratePathsRejectsUnknownGoToStep(t *testing.T) {
	wf := NewWorkflow("unknown-target")
	wf.Step("a", func(ctx context.Context) error { return nil }, GoToStepPath{Step: "ghost"})
	err := wf.Finalize()
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestEnumeratePathsRejectsBackwardGoToStep(t *testing.T) {
	wf := NewWorkflow("backward")
	wf.Step("a", func(ctx context.Context) error { return nil }, NextStepPath{})
	wf.Step("b", func(ctx context.Context) error { return nil }, GoToStepPath{Step: "a"})
	err := wf.Finalize()
	require.Error(t, err)
	var rev *ReverseGoToError
	assert.ErrorAs(t, err, &rev)
}

func TestEnumeratePathsRejectsBackwardSkip(t *testing.T) {
	wf := NewWorkflow("backward-skip")
	wf.Step("a", func(ctx context.Context) error { return nil }, SkipNStepsPath{N: -5})
	wf.Step("b", func(ctx context.Context) error { return nil })
	err := wf.Finalize()
	require.Error(t, err)
	var rev *ReverseGoToError
	assert.ErrorAs(t, err, &rev)
}

// TestRemainingForPathMultiVariantSelectsMatchingChain is the scenario
// review comment (c) names directly: a step declaring more than one
// WorkflowPath variant, where the naive total-minus-toIndex formula
// cannot distinguish which variant's continuation length applies.
func TestRemainingForPathMultiVariantSelectsMatchingChain(t *testing.T) {
	wf := NewWorkflow("branching")
	wf.Step("decide", func(ctx context.Context) error { return nil },
		NextStepPath{},
		GoToStepPath{Step: "finish"},
	)
	// Non-void so each gets an implicit NextStepPath and the chain
	// actually continues rather than terminating at the first hop.
	wf.Step("long-path-a", func(ctx context.Context) (int, error) { return 0, nil })
	wf.Step("long-path-b", func(ctx context.Context) (int, error) { return 0, nil })
	wf.Step("finish", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())

	decide := wf.steps[0]
	remainingViaNext := remainingForPath(wf, decide, NextStepPath{})
	remainingViaGoTo := remainingForPath(wf, decide, GoToStepPath{Step: "finish"})

	assert.Equal(t, 3, remainingViaNext)
	assert.Equal(t, 1, remainingViaGoTo)
}

func TestRemainingForPathFallsBackWhenNoStaticMatch(t *testing.T) {
	wf := NewWorkflow("dynamic-jump")
	wf.Step("a", func(ctx context.Context) error { return nil }, NextStepPath{})
	wf.Step("b", func(ctx context.Context) error { return nil })
	wf.Step("c", func(ctx context.Context) error { return nil })
	require.NoError(t, wf.Finalize())

	a := wf.steps[0]
	remaining := remainingForPath(wf, a, GoToStepPath{Step: "c"})
	assert.Equal(t, 3, remaining)
}

func TestPathMatches(t *testing.T) {
	assert.True(t, pathMatches(NextStepPath{}, NextStepPath{}))
	assert.True(t, pathMatches(GoToEndPath{}, GoToEndPath{}))
	assert.True(t, pathMatches(GoToStepPath{Step: "x"}, GoToStepPath{Step: "x"}))
	assert.False(t, pathMatches(GoToStepPath{Step: "x"}, GoToStepPath{Step: "y"}))
	assert.True(t, pathMatches(SkipNStepsPath{N: 2}, SkipNStepsPath{N: 2}))
	assert.False(t, pathMatches(SkipNStepsPath{N: 2}, SkipNStepsPath{N: 3}))
	assert.False(t, pathMatches(NextStepPath{}, GoToEndPath{}))
}
