package mesh

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// State is the advertisement scheduler state.
type State uint8

// Scheduler states.
const (
	// StateIdle means no session is active. The next poll pops the queue head.
	StateIdle State = iota

	// StateAdvertising means a payload is installed on the transport.
	StateAdvertising

	// StateGap means the payload has been cleared and the scheduler is
	// waiting before the next command.
	StateGap
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateGap:
		return "gap"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "advertising":
		*s = StateAdvertising
	case "gap":
		*s = StateGap
	default:
		return fmt.Errorf("unknown scheduler state %q", text)
	}
	return nil
}

// Transport installs and removes the advertising payload on a radio.
// Implementations must be cheap and non-blocking; they are called with the
// controller lock held.
type Transport interface {
	// SetPayload replaces the advertising data and starts advertising with
	// an interval drawn from [intervalMin, intervalMax] (units of 0.625 ms).
	SetPayload(adv []byte, intervalMin, intervalMax uint16) error

	// ClearPayload stops advertising.
	ClearPayload() error
}

// Session is one command's time on air.
type Session struct {
	Command       protocol.Command
	Sequence      uint8
	Advertisement protocol.Advertisement
	IntervalMin   uint16
	IntervalMax   uint16
	StartedAt     time.Time

	// EndedAt is set when the payload is cleared.
	EndedAt time.Time
}

// Duration returns how long the session was on air. Zero until it ends.
func (s Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// timing holds the scheduler's advertising parameters.
type timing struct {
	intervalMin uint16
	intervalMax uint16
	duration    time.Duration
	gap         time.Duration
}

// eventKind classifies what a poll did.
type eventKind uint8

const (
	eventNone eventKind = iota
	eventSessionStarted
	eventSessionFinished
	eventTransportError
	eventTransportRecovered
	eventDropped
)

type event struct {
	kind    eventKind
	session Session
	cmd     protocol.Command
	err     error
}

// outcome collects the events of a single poll. A poll emits at most two
// (a transport recovery followed by a session start or finish).
type outcome struct {
	events [2]event
	n      int
}

func (o *outcome) add(e event) {
	if o.n < len(o.events) {
		o.events[o.n] = e
		o.n++
	}
}

// scheduler drives the Idle → Advertising → Gap cycle. It owns the sequence
// counter and is not safe for concurrent use.
type scheduler struct {
	queue     *Queue[protocol.Command]
	transport Transport
	key       protocol.MeshKey
	seq       protocol.Sequence
	timing    timing

	state    State
	session  Session
	gapStart time.Time

	// transportDown is set by the first failed transport call and cleared by
	// the next successful one. Only those transitions are reported.
	transportDown bool
	failures      uint64
}

func newScheduler(queue *Queue[protocol.Command], transport Transport, key protocol.MeshKey, t timing) *scheduler {
	if t.intervalMax < t.intervalMin {
		t.intervalMax = t.intervalMin
	}
	return &scheduler{
		queue:     queue,
		transport: transport,
		key:       key,
		timing:    t,
	}
}

// poll advances the state machine to now. It never blocks.
func (s *scheduler) poll(now time.Time) outcome {
	var out outcome

	switch s.state {
	case StateIdle:
		cmd, ok := s.queue.Peek()
		if !ok {
			return out
		}

		seq := s.seq.Peek()
		adv, err := protocol.Encode(cmd, s.key, seq)
		if err != nil {
			// An unencodable head would wedge the queue; drop it.
			s.queue.Pop()
			out.add(event{kind: eventDropped, cmd: cmd, err: fmt.Errorf("%w: %w", ErrInvalidCommand, err)})
			return out
		}

		if err := s.transport.SetPayload(adv.Bytes(), s.timing.intervalMin, s.timing.intervalMax); err != nil {
			s.transportFailed(&out, cmd, fmt.Errorf("%w: set payload: %w", ErrTransportUnavailable, err))
			return out
		}
		s.transportOK(&out)

		s.queue.Pop()
		s.seq.Advance()
		s.session = Session{
			Command:       cmd,
			Sequence:      seq,
			Advertisement: adv,
			IntervalMin:   s.timing.intervalMin,
			IntervalMax:   s.timing.intervalMax,
			StartedAt:     now,
		}
		s.state = StateAdvertising
		out.add(event{kind: eventSessionStarted, session: s.session, cmd: cmd})

	case StateAdvertising:
		if now.Sub(s.session.StartedAt) < s.timing.duration {
			return out
		}

		// The gap only starts once the radio is quiet. A failed clear keeps
		// the session on air and is retried on the next poll.
		if err := s.transport.ClearPayload(); err != nil {
			s.transportFailed(&out, s.session.Command, fmt.Errorf("%w: clear payload: %w", ErrTransportUnavailable, err))
			return out
		}
		s.transportOK(&out)

		finished := s.session
		finished.EndedAt = now
		s.session = Session{}
		s.gapStart = now
		s.state = StateGap
		out.add(event{kind: eventSessionFinished, session: finished, cmd: finished.Command})

	case StateGap:
		if now.Sub(s.gapStart) >= s.timing.gap {
			s.state = StateIdle
		}
	}

	return out
}

// transportFailed counts a failed transport call and reports it if the
// transport was up.
func (s *scheduler) transportFailed(out *outcome, cmd protocol.Command, err error) {
	s.failures++
	if s.transportDown {
		return
	}
	s.transportDown = true
	out.add(event{kind: eventTransportError, cmd: cmd, err: err})
}

// transportOK reports a recovery if the transport was down.
func (s *scheduler) transportOK(out *outcome) {
	if !s.transportDown {
		return
	}
	s.transportDown = false
	out.add(event{kind: eventTransportRecovered})
}

// current returns the active session, if any.
func (s *scheduler) current() (Session, bool) {
	if s.state != StateAdvertising {
		return Session{}, false
	}
	return s.session, true
}
