package hid

import (
	"bytes"
	"encoding/binary"
)

// Formulator splits raw reports into keyboard and consumer reports and
// suppresses repeats. Only reports that differ from the last one of the same
// kind are produced.
type Formulator struct {
	lastInput    [InputReportLen]byte
	lastConsumer [ConsumerReportLen]byte
}

// Reset forgets the last reports, so the next raw report is always emitted.
func (f *Formulator) Reset() {
	f.lastInput = [InputReportLen]byte{}
	f.lastConsumer = [ConsumerReportLen]byte{}
}

// Formulate returns the reports raw produces, input report first.
func (f *Formulator) Formulate(raw RawReport) []Report {
	var (
		input    [InputReportLen]byte
		consumer [ConsumerReportLen]byte
	)
	copy(input[:2], raw[:2])
	n, nConsumer := 2, 0
	for _, k := range raw[2:] {
		if k >= ConsumerKeysBase {
			usage, ok := ConsumerUsage(k)
			if ok && nConsumer < MaxConsumerKeys {
				binary.LittleEndian.PutUint16(consumer[nConsumer*2:], usage)
				nConsumer++
			}
			continue
		}
		input[n] = k
		n++
	}

	var out []Report
	if !bytes.Equal(input[:], f.lastInput[:]) {
		f.lastInput = input
		out = append(out, Report{ID: InputReportID, Data: append([]byte(nil), input[:]...)})
	}
	if !bytes.Equal(consumer[:], f.lastConsumer[:]) {
		f.lastConsumer = consumer
		out = append(out, Report{ID: ConsumerReportID, Data: append([]byte(nil), consumer[:]...)})
	}
	return out
}
