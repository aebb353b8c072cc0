package hid

import "fmt"

// Report IDs.
const (
	InputReportID    uint8 = 1
	OutputReportID   uint8 = 1
	ConsumerReportID uint8 = 3
)

// Report lengths.
const (
	InputReportLen    = 8
	OutputReportLen   = 1
	ConsumerReportLen = 2
	// MaxConsumerKeys is the number of consumer controls in one report.
	MaxConsumerKeys = 1
)

// Output report LED bits.
const (
	LEDNumLock  uint8 = 0x01
	LEDCapsLock uint8 = 0x02
)

// RawReport is the scanner's view of the keyboard: modifier byte, a reserved
// byte, then up to six pressed usages, consumer pseudo usages included.
type RawReport [InputReportLen]byte

// Keys returns the non-empty usage slots.
func (r RawReport) Keys() []uint8 {
	var keys []uint8
	for _, k := range r[2:] {
		if k != KeyNone {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsRelease reports whether nothing is pressed.
func (r RawReport) IsRelease() bool { return r == RawReport{} }

func (r RawReport) String() string { return fmt.Sprintf("% x", r[:]) }

// Report is one HID report ready for the queue.
type Report struct {
	ID   uint8
	Data []byte
}

// LEDs is the host-driven indicator state.
type LEDs uint8

func (l LEDs) NumLock() bool  { return uint8(l)&LEDNumLock != 0 }
func (l LEDs) CapsLock() bool { return uint8(l)&LEDCapsLock != 0 }
