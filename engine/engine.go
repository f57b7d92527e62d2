package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/rule"
)

// ErrStalled is the conventional error for stall handlers that decide a
// stable, no-progress state is fatal. The engine never raises it on its own;
// a stall with a nil handler (or a handler returning nil) simply leaves the
// loop waiting for externally injected facts or cancellation.
var ErrStalled = stderrors.New("engine stalled: no rule fired and none in flight")

// externalIndex tags results injected through ApplyExternalFacts, which have
// no owning rule.
const externalIndex = -1

// externalHeadroom is extra result-channel capacity reserved for external
// injections beyond the one-slot-per-rule guarantee.
const externalHeadroom = 16

// actionResult is the tagged success/failure union flowing from actions back
// to the coordinator. Exactly one of res/err is meaningful.
type actionResult struct {
	ruleIndex int // externalIndex for injected facts
	res       rule.Result
	err       error
	seconds   float64
}

// bitset tracks per-rule in-flight markers, one bit per rule index.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) get(i int) bool {
	return b[i>>6]&(1<<uint(i&63)) != 0
}

func (b bitset) set(i int) {
	b[i>>6] |= 1 << uint(i&63)
}

func (b bitset) clear(i int) {
	b[i>>6] &^= 1 << uint(i&63)
}

// runState is the per-run bookkeeping created at Evaluate entry and
// discarded at its exit: which rules have an action in flight, and the
// rotation cursor anchoring the next scan.
type runState struct {
	inFlight bitset
	cursor   int
}

// Engine is the concurrent forward-chaining scheduler. It scans an immutable
// rule list against the current fact state, launches matching rule actions as
// goroutines, and serializes all state mutation through a single result
// drain, so the fact state never has concurrent writers.
type Engine struct {
	rules  []rule.Rule
	holder *stateHolder

	// results carries action and external outcomes to the coordinator. It is
	// sized so that every rule can hold one undrained result without any
	// sender blocking; done releases senders once the run is over.
	results chan actionResult
	done    chan struct{}

	stallHandler     StallHandler
	onIterationBegin IterationHook
	onIterationEnd   IterationHook
	changeListener   ChangeListener
	logger           *slog.Logger
	metrics          *engineMetrics

	started atomic.Bool
}

// New creates an engine over the initial state and rule list. The rule slice
// is copied; later mutation of the caller's slice has no effect on the run.
func New(initial fact.State, rules []rule.Rule, opts ...Option) *Engine {
	e := &Engine{
		rules:  append([]rule.Rule(nil), rules...),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.holder = newStateHolder(initial, e.changeListener)
	e.results = make(chan actionResult, len(e.rules)+externalHeadroom)

	return e
}

// State returns the current truth assignment. Safe to call from any
// goroutine.
func (e *Engine) State() fact.State {
	return e.holder.current()
}

// Evaluate runs the forward-chaining loop until ctx is cancelled or the
// stall handler returns an error. It must be called at most once per Engine;
// there are no restart semantics. Termination is always externally driven:
// the loop itself never concludes from a "completed" state, because
// forward-chaining is open-ended.
func (e *Engine) Evaluate(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Evaluate", "check run state")
	}

	// Closing done stands in for closing the results channel: late-finishing
	// actions and external injectors select against it instead of blocking
	// forever, without the send-on-closed-channel hazard.
	defer close(e.done)

	run := &runState{
		inFlight: newBitset(len(e.rules)),
		// The first scan starts at index 0.
		cursor: len(e.rules) - 1,
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state := e.holder.current()
		if e.onIterationBegin != nil {
			e.onIterationBegin(state)
		}
		e.metrics.recordIteration()

		active := e.matchRules(ctx, run, state)

		if active == 0 {
			e.metrics.recordStall()
			e.logger.Debug("no rule active", "state", state.String())
			if e.stallHandler != nil {
				if err := e.stallHandler(state); err != nil {
					return err
				}
			}
		}

		// Hand the processor to any ready action before waiting on results.
		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.consumeResults(ctx, run); err != nil {
			return err
		}

		if e.onIterationEnd != nil {
			e.onIterationEnd(e.holder.current())
		}
	}
}

// ApplyExternalFacts injects an out-of-band delta as if produced by a virtual
// action with no owning rule. It is safe to call concurrently with an active
// Evaluate run; the delta is applied on the next drain pass. After the run
// has ended it reports ErrShuttingDown.
func (e *Engine) ApplyExternalFacts(res rule.Result) error {
	// A buffered send could still succeed after the run ends, so the done
	// check comes first.
	select {
	case <-e.done:
		return errors.WrapInvalid(errors.ErrShuttingDown, "Engine", "ApplyExternalFacts", "enqueue result")
	default:
	}

	select {
	case e.results <- actionResult{ruleIndex: externalIndex, res: res}:
		return nil
	case <-e.done:
		return errors.WrapInvalid(errors.ErrShuttingDown, "Engine", "ApplyExternalFacts", "enqueue result")
	}
}

// matchRules scans all rule indices in rotated order, starting just past the
// most recently completed rule, dispatching every newly satisfied rule. The
// returned activity count covers both new dispatches and rules already in
// flight; zero means the pass found nothing running and nothing to run.
func (e *Engine) matchRules(ctx context.Context, run *runState, state fact.State) int {
	n := len(e.rules)
	active := 0

	for off := 1; off <= n; off++ {
		idx := (run.cursor + off) % n
		if run.inFlight.get(idx) {
			active++
			continue
		}

		r := e.rules[idx]
		if !rule.Eval(r, state) {
			continue
		}

		run.inFlight.set(idx)
		active++
		e.logger.Debug("rule fired", "rule", r.String(), "index", idx, "state", state.String())
		e.metrics.recordDispatch(r.String())

		go e.runAction(ctx, idx, r, state)
	}

	return active
}

// runAction executes one rule action and reports its tagged outcome. It runs
// on its own goroutine; the only shared state it touches is the results
// channel.
func (e *Engine) runAction(ctx context.Context, idx int, r rule.Rule, state fact.State) {
	start := time.Now()
	res, err := r.Action()(ctx, state)
	out := actionResult{
		ruleIndex: idx,
		res:       res,
		err:       err,
		seconds:   time.Since(start).Seconds(),
	}

	select {
	case e.results <- out:
	case <-e.done:
		// Run is over; the outcome has nowhere to go.
	}
}

// consumeResults blocks until at least one result is pending, then applies
// every queued result in arrival order without blocking further. This is the
// single point where fact state mutates.
func (e *Engine) consumeResults(ctx context.Context, run *runState) error {
	var first actionResult
	select {
	case first = <-e.results:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.handleResult(run, first)

	for {
		select {
		case next := <-e.results:
			e.handleResult(run, next)
		default:
			return nil
		}
	}
}

// handleResult books completion for rule-owned results and applies the delta
// for successful ones. Failed actions never touch the state; their rule
// becomes re-dispatchable immediately.
func (e *Engine) handleResult(run *runState, ar actionResult) {
	if ar.ruleIndex == externalIndex {
		e.metrics.recordExternal()
		e.applyDelta(ar.res)
		return
	}

	run.inFlight.clear(ar.ruleIndex)
	// Anchor the next scan just past the completed rule so repeat firers
	// cannot starve higher indices.
	run.cursor = ar.ruleIndex

	r := e.rules[ar.ruleIndex]
	e.metrics.recordCompletion(r.String(), ar.seconds, ar.err)

	if ar.err != nil {
		e.logger.Error("rule action failed",
			"rule", r.String(), "index", ar.ruleIndex, "error", ar.err)
		return
	}

	e.logger.Debug("rule completed", "rule", r.String(), "index", ar.ruleIndex)
	e.applyDelta(ar.res)
}

func (e *Engine) applyDelta(res rule.Result) {
	changed := e.holder.apply(res.Remove, res.Add)
	next := e.holder.current()
	e.metrics.recordApply(changed, next.Vector().Count())
	e.logger.Debug("result applied",
		"remove", res.Remove.String(), "add", res.Add.String(),
		"changed", changed, "state", next.String())
}
