package migrate

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// State is a step of one migration run.
type State = string

const (
	StateIdle         State = "idle"
	StateDeciding     State = "deciding"
	StateSkipped      State = "skipped"
	StatePatching     State = "patching"
	StateProvisioning State = "provisioning"
	StateDualWriting  State = "dual_writing"
	StateReindexing   State = "reindexing"
	StateSwinging     State = "swinging"
	StateDraining     State = "draining"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

const (
	eventDecide    = "decide"
	eventSkip      = "skip"
	eventPatch     = "patch"
	eventProvision = "provision"
	eventDualWrite = "dual_write"
	eventReindex   = "reindex"
	eventSwing     = "swing"
	eventDrain     = "drain"
	eventFinish    = "finish"
	eventFail      = "fail"
)

var runningStates = []string{
	StateDeciding, StatePatching, StateProvisioning, StateDualWriting,
	StateReindexing, StateSwinging, StateDraining,
}

var transitions = fsm.Events{
	{Name: eventDecide, Src: []string{StateIdle}, Dst: StateDeciding},
	{Name: eventSkip, Src: []string{StateDeciding}, Dst: StateSkipped},
	{Name: eventPatch, Src: []string{StateDeciding}, Dst: StatePatching},
	{Name: eventProvision, Src: []string{StateDeciding}, Dst: StateProvisioning},
	{Name: eventDualWrite, Src: []string{StateProvisioning}, Dst: StateDualWriting},
	{Name: eventReindex, Src: []string{StateDualWriting}, Dst: StateReindexing},
	{Name: eventSwing, Src: []string{StateReindexing}, Dst: StateSwinging},
	{Name: eventDrain, Src: []string{StateSwinging}, Dst: StateDraining},
	{Name: eventFinish, Src: []string{StatePatching, StateDraining}, Dst: StateDone},
	{Name: eventFail, Src: runningStates, Dst: StateFailed},
}

// machine tracks one run. The manager performs each step and then fires
// the event that leaves it, so an illegal ordering is a programming error
// surfaced by fsm.
type machine struct {
	fsm *fsm.FSM
	// trail records every state entered, for outcomes and tests
	trail []State
}

func newMachine(alias string, log zerolog.Logger) *machine {
	m := &machine{trail: []State{StateIdle}}
	m.fsm = fsm.NewFSM(
		StateIdle,
		transitions,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.trail = append(m.trail, e.Dst)
				log.Debug().Str("alias", alias).Str("from", e.Src).Str("state", e.Dst).Msg("migration state")
			},
		},
	)
	return m
}

func (m *machine) Current() State { return m.fsm.Current() }

func (m *machine) fire(ctx context.Context, event string) error {
	return m.fsm.Event(ctx, event)
}

// fail moves the run to failed and returns the state it failed in.
func (m *machine) fail(ctx context.Context) State {
	at := m.fsm.Current()
	if m.fsm.Can(eventFail) {
		// recording the failure must not be skipped because ctx ended
		_ = m.fsm.Event(context.WithoutCancel(ctx), eventFail)
	}
	return at
}
