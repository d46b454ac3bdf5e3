// Package planner implements the single-flight run/await/debounce
// state machine spec.md §4.8 and §5 describe: exactly one solve runs
// at a time, further triggers while running coalesce into at most one
// queued rerun, and long-poll subscribers are woken on every
// publication. Per spec.md §9's design note ("a small state machine
// ... via a single-owner task + message channel, never with locks
// spread across callers"), all state transitions are owned by one
// goroutine (loop) that callers talk to over channels; nothing else
// touches the state directly.
package planner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devskill-org/ems-core/intent"
	"github.com/devskill-org/ems-core/plan"
)

// State is the planner's run state (spec.md §4.8).
type State string

const (
	Idle          State = "idle"
	Running       State = "running"
	RunningQueued State = "running_queued"
)

// RunState identifies one accepted run.
type RunState struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Published is one completed, immutable plan (spec.md §3 "Lifecycle").
type Published struct {
	Run    RunState    `json:"run"`
	Plan   plan.Output `json:"plan"`
	Intent intent.Output `json:"intent"`
}

// SolveFunc performs one full resolve+build+solve+extract+project
// pass. It must be a pure function of its ctx (for cancellation) — the
// planner never mutates or shares state across concurrent calls since
// at most one is ever in flight.
type SolveFunc func(ctx context.Context) (plan.Output, intent.Output, error)

type waiter struct {
	ch chan Published
}

type triggerResult struct {
	run            RunState
	alreadyRunning bool
}

type command struct {
	kind    cmdKind
	since   time.Time
	resp    chan triggerResult
	waitRsp chan waiter
	peekRsp chan *Published
	pub     Published
}

type cmdKind int

const (
	cmdTrigger cmdKind = iota
	cmdPublish
	cmdAwait
	cmdDebounceFire
	cmdPeek
)

// Planner orchestrates runs per spec.md §4.8. Zero value is not
// usable; construct with New.
type Planner struct {
	logger  *log.Logger
	solveFn SolveFunc

	debounceWindow time.Duration

	cmds   chan command
	stopCh chan struct{}
	doneCh chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// New returns a Planner; a nil logger defaults to log.Default(), the
// teacher's convention (scheduler.NewMinerScheduler).
func New(solveFn SolveFunc, debounceWindow time.Duration, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Planner{
		logger:         logger,
		solveFn:        solveFn,
		debounceWindow: debounceWindow,
		cmds:           make(chan command, 16),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		baseCtx:        ctx,
		cancel:         cancel,
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// TriggerRun requests a solve. It returns immediately once the state
// machine has accepted or coalesced the request (spec.md §4.8,
// §5 "trigger_run does not suspend after state transition").
func (p *Planner) TriggerRun() (RunState, bool) {
	resp := make(chan triggerResult, 1)
	select {
	case p.cmds <- command{kind: cmdTrigger, resp: resp}:
	case <-p.doneCh:
		return RunState{}, false
	}
	select {
	case r := <-resp:
		return r.run, r.alreadyRunning
	case <-p.doneCh:
		return RunState{}, false
	}
}

// ScheduleReplan debounces a future TriggerRun: repeated calls within
// debounceWindow collapse into a single run at window end (spec.md
// §4.8 "Debouncing").
func (p *Planner) ScheduleReplan() {
	select {
	case p.cmds <- command{kind: cmdDebounceFire}:
	case <-p.doneCh:
	}
}

// AwaitLatest long-polls for a plan newer than sinceTs. If the latest
// publication already satisfies sinceTs it returns immediately; ok is
// false on timeout or planner shutdown (spec.md §4.8 "Await/long-poll").
func (p *Planner) AwaitLatest(ctx context.Context, sinceTs time.Time, timeout time.Duration) (Published, bool) {
	waitRsp := make(chan waiter, 1)
	select {
	case p.cmds <- command{kind: cmdAwait, since: sinceTs, waitRsp: waitRsp}:
	case <-p.doneCh:
		return Published{}, false
	case <-ctx.Done():
		return Published{}, false
	}

	var w waiter
	select {
	case w = <-waitRsp:
	case <-p.doneCh:
		return Published{}, false
	case <-ctx.Done():
		return Published{}, false
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case pub, ok := <-w.ch:
		return pub, ok
	case <-timeoutCh:
		return Published{}, false
	case <-ctx.Done():
		return Published{}, false
	case <-p.doneCh:
		return Published{}, false
	}
}

// Latest returns the most recent publication without waiting; ok is
// false if no solve has ever published.
func (p *Planner) Latest() (Published, bool) {
	peekRsp := make(chan *Published, 1)
	select {
	case p.cmds <- command{kind: cmdPeek, peekRsp: peekRsp}:
	case <-p.doneCh:
		return Published{}, false
	}
	select {
	case pub := <-peekRsp:
		if pub == nil {
			return Published{}, false
		}
		return *pub, true
	case <-p.doneCh:
		return Published{}, false
	}
}

// Stop cancels the background long-poll loop, cancels any pending
// debounce, drains awaiters with a terminal no-content signal, and
// lets an in-flight solve complete (its result is still published;
// spec.md §4.8 "Cancellation").
func (p *Planner) Stop() {
	select {
	case <-p.stopCh:
		return // already stopped
	default:
		close(p.stopCh)
	}
	p.cancel()
	p.wg.Wait()
}

func (p *Planner) loop() {
	defer p.wg.Done()
	defer close(p.doneCh)

	state := Idle
	var current RunState
	var latest *Published
	var waiters []chan Published
	var debounceTimer *time.Timer

	stopDebounce := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
			debounceTimer = nil
		}
	}
	defer stopDebounce()

	notifyAndClear := func(pub Published) {
		for _, ch := range waiters {
			ch <- pub
		}
		waiters = nil
	}

	startRun := func() RunState {
		current = RunState{ID: uuid.New(), GeneratedAt: time.Now()}
		run := current
		ctx := p.baseCtx
		p.wg.Add(1)
		go func(run RunState) {
			defer p.wg.Done()
			planOut, intentOut, err := p.solveFn(ctx)
			if err != nil {
				p.logger.Printf("planner: run %s failed: %v", run.ID, err)
			}
			// p.cmds is still being read here: loop keeps draining it
			// until any in-flight run has published (see the stopping
			// handling below), so this send cannot race doneCh's close.
			p.cmds <- command{kind: cmdPublish, pub: Published{Run: run, Plan: planOut, Intent: intentOut}}
		}(run)
		return run
	}

	shutdown := func() {
		for _, ch := range waiters {
			close(ch)
		}
	}

	// stopSignal is nilled out once a stop has been observed while a run
	// is in flight, so the select below stops re-firing on the
	// now-closed p.stopCh and instead keeps draining cmds until that
	// run publishes (spec.md §4.8 "a solve in flight is allowed to
	// complete; its result is still published").
	stopSignal := p.stopCh
	stopping := false

	for {
		select {
		case <-stopSignal:
			if state == Idle {
				shutdown()
				return
			}
			stopping = true
			stopSignal = nil

		case cmd := <-p.cmds:
			switch cmd.kind {
			case cmdTrigger:
				switch state {
				case Idle:
					state = Running
					run := startRun()
					cmd.resp <- triggerResult{run: run, alreadyRunning: false}
				case Running:
					state = RunningQueued
					cmd.resp <- triggerResult{run: current, alreadyRunning: true}
				case RunningQueued:
					cmd.resp <- triggerResult{run: current, alreadyRunning: true}
				}

			case cmdDebounceFire:
				stopDebounce()
				debounceTimer = time.AfterFunc(p.debounceWindow, func() {
					resp := make(chan triggerResult, 1)
					select {
					case p.cmds <- command{kind: cmdTrigger, resp: resp}:
					case <-p.doneCh:
					}
				})

			case cmdPublish:
				pub := cmd.pub
				latest = &pub
				notifyAndClear(pub)
				switch state {
				case Running:
					state = Idle
				case RunningQueued:
					if stopping {
						state = Idle
					} else {
						state = Running
						startRun()
					}
				}
				if stopping && state == Idle {
					shutdown()
					return
				}

			case cmdPeek:
				cmd.peekRsp <- latest

			case cmdAwait:
				if latest != nil && latest.Plan.Header.GeneratedAt.After(cmd.since) {
					ch := make(chan Published, 1)
					ch <- *latest
					cmd.waitRsp <- waiter{ch: ch}
					continue
				}
				ch := make(chan Published, 1)
				waiters = append(waiters, ch)
				cmd.waitRsp <- waiter{ch: ch}
			}
		}
	}
}
