// Package wizard implements the client-side import flow: a state machine
// driven by polling the server's import status, with per-stage timeouts
// and cancel/retry. It owns none of the processing; it only observes.
package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/models"
)

// State is a client-side wizard state.
type State string

const (
	StateIdle               State = "idle"
	StateUploading          State = "uploading"
	StateCheckingEncryption State = "checking_encryption"
	StatePasswordRequired   State = "password_required"
	StateValidatingPassword State = "validating_password"
	StateExtracting         State = "extracting"
	StatePreviewReady       State = "preview_ready"
	StateCategorizing       State = "categorizing"
	StateConfirmReady       State = "confirm_ready"
	StateCompleted          State = "completed"
	StateError              State = "error"
)

// terminal reports whether no further transitions are expected.
func terminal(s State) bool {
	return s == StateCompleted || s == StateError || s == StateIdle
}

// stageRank orders the happy path so stale observations (an older status
// arriving after a newer one) never move the machine backwards.
var stageRank = map[State]int{
	StateIdle:               0,
	StateUploading:          1,
	StateCheckingEncryption: 2,
	StatePasswordRequired:   3,
	StateValidatingPassword: 3,
	StateExtracting:         4,
	StatePreviewReady:       5,
	StateCategorizing:       6,
	StateConfirmReady:       7,
	StateCompleted:          8,
}

// ImportStatus is the server-side view the machine consumes.
type ImportStatus struct {
	Status       string
	ErrorMessage string
}

// StatusFetcher reads the current Import Record status.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (*ImportStatus, error)
}

// Canceller deletes the server-side import on user cancel.
type Canceller interface {
	CancelImport(ctx context.Context) error
}

// Listener receives state changes. It is invoked outside the machine's
// lock, with the state captured at fire time.
type Listener func(state State, message string)

// stageTimeout bounds how long the machine waits in a waiting state
// without observing forward progress.
const stageTimeout = 3 * time.Minute

// timedStates are the states that arm the wall-clock timeout on entry.
var timedStates = map[State]bool{
	StateCheckingEncryption: true,
	StateValidatingPassword: true,
	StateExtracting:         true,
}

// Machine is the wizard state machine. All transitions serialize through
// its mutex; the listener always sees states in transition order.
type Machine struct {
	mu      sync.Mutex
	state   State
	message string

	listener Listener
	log      zerolog.Logger

	// stageTimeout is overridable in tests.
	stageTimeout time.Duration

	timer   *time.Timer
	timerID int
}

func NewMachine(listener Listener, log zerolog.Logger) *Machine {
	return &Machine{state: StateIdle, listener: listener, log: log, stageTimeout: stageTimeout}
}

// State returns the current state and message.
func (m *Machine) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.message
}

// Begin moves idle → uploading when the user picks a file.
func (m *Machine) Begin() {
	m.transition(StateUploading, "")
}

// Uploaded moves the machine into the encryption check once the server
// accepted the document.
func (m *Machine) Uploaded() {
	m.transition(StateCheckingEncryption, "")
}

// PasswordSubmitted marks the round-trip of a password attempt.
func (m *Machine) PasswordSubmitted() {
	m.transition(StateValidatingPassword, "")
}

// Observe maps a polled server status onto the client state. Repeated or
// stale observations are no-ops; only a genuinely new forward state fires
// the listener, so side effects never re-trigger.
func (m *Machine) Observe(status *ImportStatus) {
	next, ok := mapServerStatus(status.Status)
	if !ok {
		return
	}

	m.mu.Lock()
	current := m.state
	if terminal(current) && current != StateIdle {
		m.mu.Unlock()
		return
	}
	if next == current {
		m.mu.Unlock()
		return
	}

	// Rank order filters stale observations, with two exceptions:
	// password_required legitimately loops backwards after a wrong
	// password, and error is reachable from anywhere.
	if next != StatePasswordRequired && next != StateError && stageRank[next] < stageRank[current] {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	message := ""
	if next == StatePasswordRequired || next == StateError {
		message = status.ErrorMessage
	}
	m.transition(next, message)
}

// Fail moves to error with a message, from any non-terminal state.
func (m *Machine) Fail(message string) {
	m.transition(StateError, message)
}

// Cancel deletes the server-side import and resets to idle.
func (m *Machine) Cancel(ctx context.Context, canceller Canceller) error {
	if canceller != nil {
		if err := canceller.CancelImport(ctx); err != nil {
			m.log.Warn().Err(err).Msg("Server-side cancel failed")
		}
	}
	m.transition(StateIdle, "")
	return nil
}

// Retry discards the failed import and restarts from idle. The wizard
// session itself stays open.
func (m *Machine) Retry(ctx context.Context, canceller Canceller) {
	m.mu.Lock()
	if m.state != StateError {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	_ = m.Cancel(ctx, canceller)
}

func (m *Machine) transition(next State, message string) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}

	m.state = next
	m.message = message
	m.disarmTimerLocked()
	if timedStates[next] {
		m.armTimerLocked()
	}
	listener := m.listener
	m.mu.Unlock()

	m.log.Debug().Str("state", string(next)).Msg("Wizard transition")
	if listener != nil {
		// Re-read under the lock at fire time: a cancel racing this
		// callback must win.
		state, msg := m.State()
		listener(state, msg)
	}
}

// armTimerLocked starts the stage timeout. The generation counter makes a
// late-firing timer from a previous stage harmless.
func (m *Machine) armTimerLocked() {
	m.timerID++
	id := m.timerID
	m.timer = time.AfterFunc(m.stageTimeout, func() {
		m.mu.Lock()
		stale := id != m.timerID || !timedStates[m.state]
		m.mu.Unlock()
		if stale {
			return
		}
		m.Fail("the operation timed out, please try again")
	})
}

func (m *Machine) disarmTimerLocked() {
	m.timerID++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// mapServerStatus translates an Import Record status into a client state.
func mapServerStatus(status string) (State, bool) {
	switch status {
	case models.ImportStatusUploaded:
		return StateCheckingEncryption, true
	case models.ImportStatusPasswordRequired:
		return StatePasswordRequired, true
	case models.ImportStatusExtracting:
		return StateExtracting, true
	case models.ImportStatusExtracted:
		return StatePreviewReady, true
	case models.ImportStatusCategorizing:
		return StateCategorizing, true
	case models.ImportStatusReady:
		return StateConfirmReady, true
	case models.ImportStatusCompleted:
		return StateCompleted, true
	case models.ImportStatusFailed:
		return StateError, true
	}
	return "", false
}
