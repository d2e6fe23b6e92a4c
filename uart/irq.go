package uart

// irqReadChunk bounds the stack buffer used to empty the RX FIFO.
const irqReadChunk = 32

func (t *Transport) writeIRQ(node *txNode) {
	t.mx.Lock()
	// the completion path may be between releasing a node and promoting the
	// next one, so an empty pending slot alone does not mean idle
	if t.txPending == nil && t.txQueue.Empty() {
		t.txPending = node
		t.txProgress = 0
		t.mx.Unlock()
		// kick the handler to start filling
		t.irqdev.IRQTxEnable()
		return
	}
	t.txQueue.Add(node)
	t.mx.Unlock()
}

// handleIRQ runs in interrupt context.
func (t *Transport) handleIRQ(dev IRQDevice) {
	if !dev.IRQUpdate() || !dev.IRQIsPending() {
		return
	}

	if dev.IRQRxReady() {
		var buf [irqReadChunk]byte
		if n := dev.FifoRead(buf[:]); n > 0 {
			t.deliver(buf[:n])
		}
	}

	if dev.IRQTxReady() > 0 {
		t.fillTxFifo(dev)
	}

	if dev.IRQTxComplete() {
		t.completeIRQ(dev)
	}
}

// fillTxFifo copies as much of the pending node as the FIFO accepts.
func (t *Transport) fillTxFifo(dev IRQDevice) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.txPending == nil {
		dev.IRQTxDisable()
		return
	}
	for {
		remaining := len(t.txPending.data) - t.txProgress
		if remaining == 0 {
			// everything is in the FIFO, wait for tx complete
			return
		}
		room := dev.IRQTxReady()
		if room <= 0 {
			return
		}
		if room > remaining {
			room = remaining
		}
		written := dev.FifoFill(t.txPending.data[t.txProgress : t.txProgress+room])
		if written <= 0 {
			return
		}
		t.txProgress += written
	}
}

func (t *Transport) completeIRQ(dev IRQDevice) {
	t.mx.Lock()
	done := t.txPending
	if done != nil && t.txProgress < len(done.data) {
		// FIFO ran dry before the node was fully copied in.
		t.mx.Unlock()
		return
	}
	t.txPending = nil
	t.txProgress = 0
	t.mx.Unlock()

	// the callback sees the line idle, the next node is promoted after it
	if done != nil {
		t.pool.put(done)
		if t.txDone != nil {
			t.txDone(t)
		}
	}

	t.mx.Lock()
	if t.txPending == nil {
		t.txPending = t.popLocked()
		t.txProgress = 0
	}
	next := t.txPending
	t.mx.Unlock()

	if next != nil {
		dev.IRQTxEnable()
	} else {
		dev.IRQTxDisable()
	}
}
