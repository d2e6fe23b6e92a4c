package uart

import (
	"errors"

	"github.com/mklimuk/peripherals"
)

// handleEvent is the completion path of the event-driven backend. The device
// never runs it concurrently with itself.
func (t *Transport) handleEvent(dev EventDevice, evt Event) {
	switch evt.Type {
	case EventTxDone, EventTxAborted:
		t.mx.Lock()
		done := t.txPending
		if done != nil && !sameBuffer(evt.Data, done.data) {
			t.log.Warn("tx completion for a buffer that is not pending", "event", evt.Type)
			done = nil
		}
		if done != nil {
			t.txPending = nil
		}
		t.mx.Unlock()
		if done == nil {
			// duplicate or late completion, the node is already gone
			_ = t.startNextEvent(nil)
			return
		}
		t.pool.put(done)

		_ = t.startNextEvent(nil)
		if evt.Type == EventTxDone && t.txDone != nil {
			t.txDone(t)
		}

	case EventRxBufRequest:
		// Always answer with the buffer the hardware is not filling. A
		// controller that reports it pins the choice, which keeps the
		// rotation right across disable/enable cycles.
		idx := t.rxIdx
		if len(evt.Data) > 0 {
			idx = 1
			if sameBuffer(evt.Data, t.rxBuf[1]) {
				idx = 0
			}
		}
		if err := dev.RxBufRsp(t.rxBuf[idx]); err != nil {
			t.log.Error("uart rx buffer response failed", "error", err)
		}
		t.rxIdx = idx ^ 1

	case EventRxReady:
		if len(evt.Data) > 0 {
			t.deliver(evt.Data)
		}

	case EventRxStopped:
		t.log.Warn("uart rx stopped", "error", evt.Err)
	}
}

// startNextEvent hands the head of the queue to the hardware when nothing is
// pending. A busy controller leaves the head queued. The start error is
// returned only when it concerns own, the node of the calling Write.
func (t *Transport) startNextEvent(own *txNode) error {
	for {
		t.mx.Lock()
		if t.txPending != nil || t.txQueue.Empty() {
			t.mx.Unlock()
			return nil
		}
		head := t.popLocked()
		t.txPending = head
		t.mx.Unlock()

		err := t.evdev.Tx(head.data, t.txTimeout)
		if err == nil {
			return nil
		}

		t.mx.Lock()
		if t.txPending == head {
			t.txPending = nil
		}
		if errors.Is(err, peripherals.ErrBusy) {
			t.txQueue.Prepend(head)
			t.mx.Unlock()
			return nil
		}
		t.mx.Unlock()
		t.pool.put(head)
		if head == own {
			return err
		}
		t.log.Error("uart tx failed", "error", err)
		if own == nil {
			return nil
		}
	}
}

func sameBuffer(a, b []byte) bool {
	if len(a) == 0 {
		// controller did not report the buffer
		return true
	}
	return len(b) > 0 && &a[0] == &b[0]
}
