package ergate

import (
	"context"
	"fmt"
	"reflect"
)

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// Provider resolves a single dependency value for one step invocation. It
// returns the value, a release function invoked (LIFO, across every
// provider used by that invocation) once the step returns, and an error
// if acquisition failed. A nil release is fine when there's nothing to
// release.
type Provider func(ctx context.Context, cache *DependsCache) (any, func(), error)

// DependsCache memoizes provider results within a single step invocation,
// keyed by the parameter type the provider is registered for. A workflow
// holds exactly one provider per type, so the type identifies the
// provider, and two parameters depending on the same provider share one
// acquisition. A fresh DependsCache is created per dispatch; nothing
// survives across steps.
type DependsCache struct {
	values map[reflect.Type]any
}

func newDependsCache() *DependsCache {
	return &DependsCache{values: make(map[reflect.Type]any)}
}

// paramKind classifies how the resolver fills a single step-function
// parameter.
type paramKind int

const (
	kindInput paramKind = iota
	kindContext
	kindUserContext
	kindDepends
)

type paramSpec struct {
	kind     paramKind
	typ      reflect.Type
	provider Provider
}

// classifyParams inspects a step function's parameter list once, at
// registration time, the same moment the original project's
// inspect.signature walk ran. At most one parameter may be kindInput;
// every other parameter must either be context.Context, a type
// registered via UseContext (receives the job's UserContext), or a type
// with a provider registered via dependsProviders.
func classifyParams(fnType reflect.Type, dependsProviders map[reflect.Type]Provider, contextTypes map[reflect.Type]bool) ([]paramSpec, error) {
	specs := make([]paramSpec, fnType.NumIn())
	seenInput := false
	for i := 0; i < fnType.NumIn(); i++ {
		pt := fnType.In(i)
		switch {
		case pt == ctxType:
			specs[i] = paramSpec{kind: kindContext, typ: pt}
		case contextTypes[pt]:
			specs[i] = paramSpec{kind: kindUserContext, typ: pt}
		default:
			if p, ok := dependsProviders[pt]; ok {
				specs[i] = paramSpec{kind: kindDepends, typ: pt, provider: p}
				continue
			}
			if seenInput {
				return nil, fmt.Errorf("parameter %d of type %s has no registered provider and a step may declare at most one Input parameter", i, pt)
			}
			seenInput = true
			specs[i] = paramSpec{kind: kindInput, typ: pt}
		}
	}
	return specs, nil
}

// resolveArgs builds the reflect.Value argument list for one step
// invocation. It returns the args, a release function that unwinds every
// acquired dependency in LIFO order, and an error if any provider failed
// (in which case already-acquired dependencies are released before
// returning).
func resolveArgs(ctx context.Context, specs []paramSpec, input any, userContext any) ([]reflect.Value, func(), error) {
	args := make([]reflect.Value, len(specs))
	cache := newDependsCache()
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for i, spec := range specs {
		switch spec.kind {
		case kindContext:
			args[i] = reflect.ValueOf(ctx)
		case kindUserContext:
			args[i] = coerceInput(spec.typ, userContext)
		case kindInput:
			args[i] = coerceInput(spec.typ, input)
		case kindDepends:
			if cached, ok := cache.values[spec.typ]; ok {
				args[i] = reflect.ValueOf(cached)
				continue
			}
			val, rel, err := spec.provider(ctx, cache)
			if err != nil {
				release()
				return nil, nil, fmt.Errorf("resolving dependency for parameter %d: %w", i, err)
			}
			cache.values[spec.typ] = val
			if rel != nil {
				releases = append(releases, rel)
			}
			args[i] = reflect.ValueOf(val)
		}
	}
	return args, release, nil
}

func coerceInput(want reflect.Type, input any) reflect.Value {
	if input == nil {
		return reflect.Zero(want)
	}
	v := reflect.ValueOf(input)
	if v.Type().AssignableTo(want) {
		return v
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want)
	}
	return reflect.Zero(want)
}

// UseDepends registers provider as the source of values for any step
// parameter typed exactly T. Call it before registering steps that
// declare a T parameter; registering twice for the same T replaces the
// earlier provider.
func UseDepends[T any](wf *Workflow, provider func(ctx context.Context, cache *DependsCache) (T, func(), error)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	wf.dependsProviders[t] = func(ctx context.Context, cache *DependsCache) (any, func(), error) {
		v, release, err := provider(ctx, cache)
		return v, release, err
	}
}

// UseContext registers T as the type that receives the job's
// UserContext — the opaque caller data set on Client.Submit via
// SubmitOptions.UserContext, unrelated to the ambient context.Context
// parameter used for cancellation. Call it before registering steps that
// declare a T parameter for their user context.
func UseContext[T any](wf *Workflow) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	wf.contextTypes[t] = true
}

// invokeStep calls a step function with resolved arguments and splits its
// return values into (value, error) — the value is nil for steps that
// only return error, and error is nil when the function has no error
// return.
func invokeStep(fn reflect.Value, args []reflect.Value) (any, error) {
	out := fn.Call(args)
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type() == errType {
		var err error
		if !last.IsNil() {
			err = last.Interface().(error)
		}
		if len(out) == 1 {
			return nil, err
		}
		return out[0].Interface(), err
	}
	return out[0].Interface(), nil
}
