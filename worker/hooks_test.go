package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	ergate "github.com/ergatehq/ergate"
)

type billingError struct{ reason string }

func (e *billingError) Error() string { return fmt.Sprintf("billing error: %s", e.reason) }

func TestErrorHookHandlerFirstMatchWins(t *testing.T) {
	h := NewErrorHookHandler(nil)
	var fired []string

	RegisterErrorHook(h, func(job ergate.Job, err error) { fired = append(fired, "generic") })
	RegisterErrorHook(h, func(job ergate.Job, err *billingError) { fired = append(fired, "billing") })

	h.Notify(ergate.Job{ID: "j1"}, &billingError{reason: "declined"})

	assert.Equal(t, []string{"generic"}, fired)
}

func TestErrorHookHandlerTypedMatchBeforeGeneric(t *testing.T) {
	h := NewErrorHookHandler(nil)
	var fired []string

	RegisterErrorHook(h, func(job ergate.Job, err *billingError) { fired = append(fired, "billing") })
	RegisterErrorHook(h, func(job ergate.Job, err error) { fired = append(fired, "generic") })

	h.Notify(ergate.Job{ID: "j1"}, &billingError{reason: "declined"})
	h.Notify(ergate.Job{ID: "j2"}, errors.New("other"))

	assert.Equal(t, []string{"billing", "generic"}, fired)
}

func TestErrorHookHandlerNoMatchDoesNothing(t *testing.T) {
	h := NewErrorHookHandler(nil)
	RegisterErrorHook(h, func(job ergate.Job, err *billingError) {
		t.Fatal("billing hook must not fire")
	})

	h.Notify(ergate.Job{ID: "j1"}, errors.New("unrelated"))
}

func TestErrorHookHandlerSwallowsPanic(t *testing.T) {
	h := NewErrorHookHandler(nil)
	RegisterErrorHook(h, func(job ergate.Job, err error) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		h.Notify(ergate.Job{ID: "j1"}, errors.New("anything"))
	})
}
