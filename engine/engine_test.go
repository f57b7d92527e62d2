package engine

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/rule"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Two mutually aware rules: the first keeps refiring on a fact it never
// consumes, the second fires until the first's output shows up. The run must
// never stall and must reach a state holding both facts.
func TestEvaluateTwoRuleChase(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")
	b := reg.MustAllocate("b")

	var rule1Fires, stalls atomic.Int64
	rule1 := rule.Given(a).Then(func(context.Context, fact.State) (rule.Result, error) {
		rule1Fires.Add(1)
		return rule.Result{Add: b.Vector()}, nil
	})
	rule2 := rule.Always().Unless(b).ThenAdd(a)

	e := New(fact.StateOf(a), []rule.Rule{rule1, rule2},
		WithLogger(quietLogger()),
		WithStallHandler(func(fact.State) error {
			stalls.Add(1)
			return nil
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := e.Evaluate(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.GreaterOrEqual(t, rule1Fires.Load(), int64(2),
		"a rule whose condition stays satisfied must fire again")
	assert.Equal(t, int64(0), stalls.Load(),
		"a permanently satisfied rule keeps the run active")
	assert.Equal(t, fact.StateOf(a, b), e.State())
}

func TestEvaluateStallHandlerTerminates(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	r := rule.Given(a).ThenRemove(a)
	e := New(fact.VoidState, []rule.Rule{r},
		WithLogger(quietLogger()),
		WithStallHandler(func(state fact.State) error {
			assert.Equal(t, fact.VoidState, state)
			return ErrStalled
		}),
	)

	err := e.Evaluate(context.Background())
	require.ErrorIs(t, err, ErrStalled)
}

func TestEvaluateOnce(t *testing.T) {
	e := New(fact.VoidState, nil, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Evaluate(ctx)
	require.ErrorIs(t, err, context.Canceled)

	err = e.Evaluate(context.Background())
	require.ErrorIs(t, err, errors.ErrAlreadyStarted)
	assert.True(t, errors.IsInvalid(err))
}

// A run with nothing to do blocks waiting on results; an external delta must
// wake it and make its rules eligible.
func TestExternalInjectionWakesIdleRun(t *testing.T) {
	reg := fact.NewRegistry()
	b := reg.MustAllocate("b")

	states := make(chan fact.State, 64)
	r := rule.Given(b).ThenRemove(b)
	e := New(fact.VoidState, []rule.Rule{r},
		WithLogger(quietLogger()),
		WithChangeListener(func(_ fact.State, _, _ fact.Vector, next fact.State) {
			states <- next
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() {
		runDone <- e.Evaluate(ctx)
	}()

	require.NoError(t, e.ApplyExternalFacts(rule.Result{Add: b.Vector()}))

	// First the injected fact lands, then the rule consumes it.
	waitForState(t, states, fact.StateOf(b))
	waitForState(t, states, fact.VoidState)

	cancel()
	select {
	case err := <-runDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, fact.VoidState, e.State())
}

func waitForState(t *testing.T, states <-chan fact.State, want fact.State) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %v never observed", want)
		}
	}
}

// A failing action must not contribute its delta, must not stop sibling
// rules, and must leave its rule eligible to fire again.
func TestActionFailureIsolation(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")
	b := reg.MustAllocate("b")
	c := reg.MustAllocate("c")

	var failures atomic.Int64
	failing := rule.Given(a).Then(func(context.Context, fact.State) (rule.Result, error) {
		failures.Add(1)
		return rule.Result{Add: c.Vector()}, stderrors.New("boom")
	})
	healthy := rule.Given(a).ThenAdd(b)

	e := New(fact.StateOf(a), []rule.Rule{failing, healthy}, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := e.Evaluate(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	state := e.State()
	assert.True(t, state.Matches(b.Vector()), "sibling rule must still run")
	assert.False(t, state.Matches(c.Vector()), "failed action's delta must be discarded")
	assert.GreaterOrEqual(t, failures.Load(), int64(2),
		"a failed rule must become dispatchable again")
}

func TestApplyExternalFactsAfterShutdown(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	e := New(fact.VoidState, nil, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.Evaluate(ctx), context.Canceled)

	err := e.ApplyExternalFacts(rule.Result{Add: a.Vector()})
	require.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.True(t, errors.IsInvalid(err))
}

func TestIterationHooks(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	var begins, ends atomic.Int64
	r := rule.Given(a).ThenRemove(a)
	e := New(fact.StateOf(a), []rule.Rule{r},
		WithLogger(quietLogger()),
		WithIterationBegin(func(fact.State) { begins.Add(1) }),
		WithIterationEnd(func(fact.State) { ends.Add(1) }),
		WithStallHandler(func(fact.State) error { return ErrStalled }),
	)

	err := e.Evaluate(context.Background())
	require.ErrorIs(t, err, ErrStalled)
	assert.GreaterOrEqual(t, begins.Load(), int64(1))
	// The terminating pass returns before its end hook.
	assert.Equal(t, begins.Load()-1, ends.Load())
}

// Completion bookkeeping drives the rotation: the cursor lands on the
// finished rule so the next scan starts just past it, and its in-flight bit
// clears.
func TestHandleResultRotation(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	rules := []rule.Rule{
		rule.Given(a).ThenRemove(a),
		rule.Given(a).ThenRemove(a),
		rule.Given(a).ThenRemove(a),
	}
	e := New(fact.VoidState, rules, WithLogger(quietLogger()))

	run := &runState{inFlight: newBitset(len(rules)), cursor: len(rules) - 1}
	run.inFlight.set(1)

	e.handleResult(run, actionResult{ruleIndex: 1, res: rule.Void})
	assert.Equal(t, 1, run.cursor)
	assert.False(t, run.inFlight.get(1))
}

func TestHandleResultExternalKeepsCursor(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	rules := []rule.Rule{rule.Given(a).ThenRemove(a)}
	e := New(fact.VoidState, rules, WithLogger(quietLogger()))

	run := &runState{inFlight: newBitset(len(rules)), cursor: 0}
	e.handleResult(run, actionResult{ruleIndex: externalIndex, res: rule.Result{Add: a.Vector()}})

	assert.Equal(t, 0, run.cursor, "external results have no owning rule")
	assert.Equal(t, fact.StateOf(a), e.State())
}

func TestBitset(t *testing.T) {
	b := newBitset(130)
	require.Len(t, b, 3)

	for _, i := range []int{0, 63, 64, 129} {
		assert.False(t, b.get(i))
		b.set(i)
		assert.True(t, b.get(i))
	}
	b.clear(64)
	assert.False(t, b.get(64))
	assert.True(t, b.get(63))
	assert.True(t, b.get(129))
}

// An in-flight rule must not be dispatched a second time for the same
// continuing condition.
func TestNoDuplicateDispatchWhileInFlight(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	var running, maxRunning atomic.Int64
	slow := rule.Given(a).Then(func(ctx context.Context, _ fact.State) (rule.Result, error) {
		n := running.Add(1)
		for {
			prev := maxRunning.Load()
			if n <= prev || maxRunning.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return rule.Void, nil
	})

	e := New(fact.StateOf(a), []rule.Rule{slow}, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.Evaluate(ctx), context.DeadlineExceeded)

	assert.Equal(t, int64(1), maxRunning.Load(),
		"one action per rule at a time")
}

// With several rules that are all permanently satisfiable, every index must
// keep getting dispatched; none may be starved by its lower-index neighbors.
func TestRotationSpreadsDispatch(t *testing.T) {
	reg := fact.NewRegistry()
	a := reg.MustAllocate("a")

	const n = 4
	fires := make([]atomic.Int64, n)
	rules := make([]rule.Rule, n)
	for i := range rules {
		counter := &fires[i]
		rules[i] = rule.Given(a).Then(func(context.Context, fact.State) (rule.Result, error) {
			counter.Add(1)
			return rule.Void, nil
		})
	}

	e := New(fact.StateOf(a), rules, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.Evaluate(ctx), context.DeadlineExceeded)

	for i := range fires {
		assert.GreaterOrEqual(t, fires[i].Load(), int64(2),
			"rule %d starved", i)
	}
}
