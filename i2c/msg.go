package i2c

import (
	"context"
	"fmt"
	"strings"
)

type MsgFlags uint8

const (
	MsgWrite   MsgFlags = 0x00
	MsgRead    MsgFlags = 0x01
	MsgStop    MsgFlags = 0x02
	MsgRestart MsgFlags = 0x04
)

func (f MsgFlags) String() string {
	parts := []string{"WRITE"}
	if f&MsgRead != 0 {
		parts[0] = "READ"
	}
	if f&MsgRestart != 0 {
		parts = append(parts, "RESTART")
	}
	if f&MsgStop != 0 {
		parts = append(parts, "STOP")
	}
	return strings.Join(parts, "|")
}

// Msg is one segment of a bus transaction.
type Msg struct {
	Buf   []byte
	Flags MsgFlags
}

func (m Msg) IsRead() bool { return m.Flags&MsgRead != 0 }

func (m Msg) String() string {
	return fmt.Sprintf("%s(%d)", m.Flags, len(m.Buf))
}

// Controller is a bus able to run a chain of messages addressed to one target.
type Controller interface {
	Ready() bool
	Transfer(ctx context.Context, msgs []Msg, addr uint16) error
}

// SignalTransferer starts a chained transfer and raises sig with the result
// once the bus is done with msgs.
type SignalTransferer interface {
	TransferSignal(msgs []Msg, addr uint16, sig *Signal) error
}

// CallbackTransferer starts a chained transfer and calls done with the result.
type CallbackTransferer interface {
	TransferCallback(msgs []Msg, addr uint16, done func(result error)) error
}

// Spec binds a controller to a 7-bit target address.
type Spec struct {
	Bus  Controller
	Addr uint16
}

func (s Spec) String() string {
	return fmt.Sprintf("%#02x", s.Addr)
}

// segment is a write optionally followed by a read with a repeated start,
// the unit most host buses run as one Tx.
type segment struct {
	w, r []byte
}

// segments folds msgs into write/read pairs. A STOP closes the pair; a read
// without a preceding write becomes a read-only pair.
func segments(msgs []Msg) ([]segment, error) {
	var out []segment
	open := false
	for i, m := range msgs {
		if len(m.Buf) == 0 {
			return nil, fmt.Errorf("message %d is empty", i)
		}
		switch {
		case !m.IsRead():
			out = append(out, segment{w: m.Buf})
			open = m.Flags&MsgStop == 0
		case open && out[len(out)-1].r == nil:
			out[len(out)-1].r = m.Buf
			open = false
		default:
			out = append(out, segment{r: m.Buf})
			open = false
		}
	}
	return out, nil
}
