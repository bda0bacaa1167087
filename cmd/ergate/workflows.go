package main

import (
	"context"
	"fmt"

	ergate "github.com/ergatehq/ergate"
)

// onboardUserInput is the payload submitted for the "onboard-user"
// workflow.
type onboardUserInput struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

// registerWorkflows builds and registers every workflow this process
// knows how to run. ergate has no workflow-registration CLI of its own:
// workflows are Go values built with ergate.NewWorkflow, so a process
// that runs jobs always compiles in the workflows it serves.
func registerWorkflows(registry *ergate.WorkflowRegistry) error {
	wf := ergate.NewWorkflow("onboard-user")

	wf.Step("create-account", func(ctx context.Context, in onboardUserInput) (string, error) {
		if in.Email == "" {
			return "", &ergate.AbortJob{Reason: "missing email"}
		}
		return fmt.Sprintf("acct-%s", in.Email), nil
	})

	wf.Step("send-welcome-email", func(ctx context.Context, accountID string) error {
		return nil
	}, ergate.NextStepPath{})

	wf.Step("provision-trial", func(ctx context.Context, accountID string) error {
		return nil
	}, ergate.GoToEndPath{})

	if err := wf.Finalize(); err != nil {
		return fmt.Errorf("finalizing onboard-user workflow: %w", err)
	}

	return registry.Register(wf)
}
