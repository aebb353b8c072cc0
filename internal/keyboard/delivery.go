package keyboard

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
)

// submit queues a report for the host.
func (k *Keyboard) submit(r hid.Report) {
	if evicted := k.queue.Push(r.ID, r.Data); evicted {
		k.log.Debug("[KBD] queue full, oldest report dropped", "capacity", k.queue.Cap())
	}
	k.sess.DataPending = true
}

// route returns the characteristic for reports with id and whether the host
// has notifications on for it. The boot service takes the input report while
// its notifications are on.
func (k *Keyboard) route(id uint8) (handle uint16, notifying, ok bool) {
	if k.boot != nil && k.boot.NotificationsEnabled() && id == hid.InputReportID {
		handle, ok = k.boot.ReportHandle(id)
		return handle, true, ok
	}
	handle, ok = k.hidSvc.ReportHandle(id)
	return handle, k.hidSvc.NotifyEnabled(id), ok
}

// canSend reports whether the head of the queue may go out now.
func (k *Keyboard) canSend() bool {
	s := &k.sess
	return s.State == StateConnected &&
		s.EncryptionEnabled &&
		!s.TxInProgress &&
		!s.WaitingForBuffer &&
		s.Conn != ble.InvalidConn
}

// drain hands the head of the queue to the link. At most one report is in
// flight; the rest follow as confirmations arrive.
func (k *Keyboard) drain() error {
	for k.canSend() {
		head, ok := k.queue.Peek()
		if !ok {
			return nil
		}
		handle, notifying, ok := k.route(head.ReportID)
		if !ok {
			k.log.Debug("[KBD] no characteristic for report, dropping", "report_id", head.ReportID)
			k.queue.Pop()
			if k.queue.Len() == 0 {
				k.sess.DataPending = false
			}
			continue
		}
		if !notifying {
			return nil
		}
		if err := k.link.Notify(k.sess.Conn, handle, head.Data); err != nil {
			k.log.Warn("[KBD] notify failed", "handle", fmt.Sprintf("0x%04X", handle), "error", err)
			return nil
		}
		k.hidSvc.Sent(head.ReportID, head.Data)
		k.queue.MarkSent()
		k.sess.TxInProgress = true
	}
	return nil
}

// isReportHandle reports whether h carries key data.
func isReportHandle(h uint16) bool {
	switch h {
	case gatt.HandleHIDInputReport,
		gatt.HandleHIDBootInputReport,
		gatt.HandleHIDConsumerReport,
		gatt.HandleBootReport:
		return true
	}
	return false
}

func (k *Keyboard) onNotificationConfirmed(ev ble.NotificationConfirmed) error {
	if !isReportHandle(ev.Handle) {
		return nil
	}
	k.sess.TxInProgress = false

	if ev.Err != nil {
		k.log.Debug("[KBD] link busy, waiting for buffer", "error", ev.Err)
		k.queue.ClearSent()
		k.sess.WaitingForBuffer = true
		if err := k.link.EnableTxEvents(k.sess.Conn, true); err != nil {
			k.log.Warn("[KBD] enable tx events failed", "error", err)
		}
		return nil
	}

	// A full queue may have evicted the report in flight.
	if k.queue.HeadSent() {
		k.queue.Pop()
	}
	if k.queue.Len() == 0 {
		k.sess.DataPending = false
		k.resetIdleTimer()
		return nil
	}
	if k.sess.DataPending && k.sess.EncryptionEnabled {
		return k.drain()
	}
	return nil
}

func (k *Keyboard) onTxBufferFreed() error {
	if k.sess.Conn != ble.InvalidConn {
		if err := k.link.EnableTxEvents(k.sess.Conn, false); err != nil {
			k.log.Warn("[KBD] disable tx events failed", "error", err)
		}
	}
	if !k.sess.WaitingForBuffer {
		return nil
	}
	k.sess.WaitingForBuffer = false
	if k.sess.DataPending {
		return k.drain()
	}
	return nil
}
