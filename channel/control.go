package channel

import "fmt"

// Op is an administrative command.
type Op uint

// OpClear empties the channel.
const OpClear Op = 1

func (op Op) String() string {
	if op == OpClear {
		return "clear"
	}

	return fmt.Sprintf("op(%d)", uint(op))
}

// ParseOp maps a command name to its opcode.
func ParseOp(s string) (Op, error) {
	if s == "clear" {
		return OpClear, nil
	}

	return 0, fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, s)
}

// Control executes an administrative command. Unknown opcodes are rejected
// with ErrInvalidArgument and have no effect.
func (h *Handle) Control(op Op) error {
	if h.closed.Load() {
		return ErrClosed
	}

	switch op {
	case OpClear:
		return h.ch.Clear()
	default:
		return fmt.Errorf("%w: unknown opcode %d", ErrInvalidArgument, uint(op))
	}
}

// State is where a channel is in its Empty/Partial/Full cycle.
type State int

const (
	StateEmpty State = iota
	StatePartial
	StateFull
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePartial:
		return "partial"
	case StateFull:
		return "full"
	default:
		return "unknown"
	}
}
