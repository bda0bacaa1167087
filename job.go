package ergate

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	// StatusPending means the job has been created with no future
	// requested start time; the publisher moves it onto the queue on its
	// next poll.
	StatusPending JobStatus = "PENDING"
	// StatusScheduled means the job has a future RequestedStartTime;
	// the publisher queues it once that time arrives.
	StatusScheduled JobStatus = "SCHEDULED"
	// StatusQueued means the job is sitting on the queue, waiting for
	// a worker to pick it up.
	StatusQueued JobStatus = "QUEUED"
	// StatusRunning means a worker has claimed the job and is
	// executing (or about to execute) its next step.
	StatusRunning JobStatus = "RUNNING"
	// StatusCompleted is terminal: every declared step ran, or a step
	// raised GoToEnd.
	StatusCompleted JobStatus = "COMPLETED"
	// StatusFailed is terminal: a step raised an exception that wasn't
	// one of the control-flow signals.
	StatusFailed JobStatus = "FAILED"
	// StatusAborted is terminal: a step raised AbortJob.
	StatusAborted JobStatus = "ABORTED"
	// StatusCancelling means cancellation was requested but no worker
	// has yet observed it between steps.
	StatusCancelling JobStatus = "CANCELLING"
	// StatusCancelled is terminal: a worker observed StatusCancelling
	// before dispatching the next step.
	StatusCancelled JobStatus = "CANCELLED"
)

// terminalStatuses are statuses from which a job is never requeued.
var terminalStatuses = map[JobStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusAborted:   true,
	StatusCancelled: true,
}

// IsTerminal reports whether status is one a job never leaves.
func (s JobStatus) IsTerminal() bool { return terminalStatuses[s] }

// Job is a persistent record of one run of one workflow. Everything a
// worker or publisher needs to resume, report on, or garbage collect a
// run lives on this struct; it is the unit of storage for both Queue and
// StateStore implementations.
type Job struct {
	ID               string    `json:"id"`
	WorkflowName     string    `json:"workflow_name"`
	Status           JobStatus `json:"status"`
	StepsCompleted   int       `json:"steps_completed"`
	PercentCompleted int       `json:"percent_completed"`

	// InitialInputValue is the value passed to the first step's Input
	// parameter. Later steps receive LastReturnValue instead.
	InitialInputValue any `json:"initial_input_value,omitempty"`
	// LastReturnValue is whatever the most recently completed step
	// returned; it becomes the next step's Input.
	LastReturnValue any `json:"last_return_value,omitempty"`
	// UserContext is opaque caller data threaded through every step
	// via the Context marker; the engine never inspects it.
	UserContext any `json:"user_context,omitempty"`

	// ExceptionTraceback is non-empty only when Status is
	// StatusFailed; it holds the formatted error chain from the step
	// that failed.
	ExceptionTraceback string `json:"exception_traceback,omitempty"`
	// StepName is the name of the step that will run (or most
	// recently ran) for this job.
	StepName string `json:"step_name"`

	// RequestedStartTime, if set and in the future, keeps a
	// StatusPending/StatusScheduled job from being moved to StatusQueued
	// until that time arrives.
	RequestedStartTime *time.Time `json:"requested_start_time,omitempty"`
}

// GetInputValue returns the value that should be passed to the next
// step's Input parameter: the initial input before any step has run, or
// the previous step's return value otherwise.
func (j *Job) GetInputValue() any {
	if j.StepsCompleted == 0 {
		return j.InitialInputValue
	}
	return j.LastReturnValue
}

// MarkRunning transitions the job to StatusRunning ahead of step
// dispatch.
func (j *Job) MarkRunning() {
	j.Status = StatusRunning
}

// MarkFailed records a terminal failure: the job moves to StatusFailed
// and traceback captures the error chain for operators.
func (j *Job) MarkFailed(traceback string) {
	j.Status = StatusFailed
	j.ExceptionTraceback = traceback
}

// MarkAborted records a terminal, intentional abort raised by a step.
func (j *Job) MarkAborted() {
	j.Status = StatusAborted
}

// MarkCancelled records a terminal cancellation observed between steps.
func (j *Job) MarkCancelled() {
	j.Status = StatusCancelled
}

// MarkNStepsCompleted advances the job by n completed steps, updates
// percentCompleted against totalSteps, stores returnValue as the next
// step's input, and sets the next step to run. A totalSteps of zero (no
// further declared step, i.e. the workflow ended) marks the job
// StatusCompleted instead.
func (j *Job) MarkNStepsCompleted(n int, returnValue any, totalSteps int, nextStep string) {
	j.StepsCompleted += n
	j.LastReturnValue = returnValue
	if totalSteps <= 0 {
		j.Status = StatusCompleted
		j.PercentCompleted = 100
		j.StepName = ""
		return
	}
	j.PercentCompleted = percentCompleted(j.StepsCompleted, totalSteps)
	j.StepName = nextStep
	if nextStep == "" {
		j.Status = StatusCompleted
		j.PercentCompleted = 100
	} else {
		j.Status = StatusQueued
	}
}

func percentCompleted(completed, total int) int {
	if total <= 0 {
		return 100
	}
	pct := (100*completed + total/2) / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ShouldBeRequeued reports whether the worker must put the job back on
// the queue after persisting its new state. Terminal statuses are sinks;
// every other status (QUEUED after a step advanced, CANCELLING observed
// mid-flight and not yet resolved) goes back on the queue so the next
// step gets picked up.
func (j *Job) ShouldBeRequeued() bool {
	return !j.Status.IsTerminal()
}
