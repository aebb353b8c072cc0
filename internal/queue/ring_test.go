package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := NewRing(4)
	r.Push(1, []byte{0x04})
	r.Push(3, []byte{0xE9, 0x00})

	e, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, uint8(1), e.ReportID)
	assert.Equal(t, []byte{0x04}, e.Data)

	e, ok = r.Pop()
	require.True(t, ok)
	assert.Equal(t, uint8(3), e.ReportID)

	_, ok = r.Pop()
	assert.False(t, ok)
}

func TestRingEvictsOldest(t *testing.T) {
	const capacity = 30
	r := NewRing(capacity)
	for i := 0; i < capacity+5; i++ {
		evicted := r.Push(1, []byte{byte(i)})
		assert.Equal(t, i >= capacity, evicted, "push %d", i)
		assert.LessOrEqual(t, r.Len(), capacity)
	}

	entries := r.Entries()
	require.Len(t, entries, capacity)
	for i, e := range entries {
		assert.Equal(t, byte(i+5), e.Data[0], "entry %d out of order", i)
	}
}

func TestRingCopiesData(t *testing.T) {
	r := NewRing(2)
	buf := []byte{1, 2, 3}
	r.Push(1, buf)
	buf[0] = 9

	e, _ := r.Peek()
	assert.Equal(t, []byte{1, 2, 3}, e.Data)
}

func TestRingTruncatesOversizedReports(t *testing.T) {
	r := NewRing(1)
	r.Push(1, make([]byte, MaxReportSize+4))
	e, _ := r.Peek()
	assert.Len(t, e.Data, MaxReportSize)
}

func TestRingReset(t *testing.T) {
	r := NewRing(3)
	r.Push(1, []byte{1})
	r.Push(1, []byte{2})
	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Peek()
	assert.False(t, ok)

	r.Push(1, []byte{7})
	e, _ := r.Pop()
	assert.Equal(t, []byte{7}, e.Data)
}

func TestNewRingClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, NewRing(0).Cap())
}

func TestRingSentMark(t *testing.T) {
	r := NewRing(3)
	r.MarkSent()
	assert.False(t, r.HeadSent(), "empty ring has no head")

	r.Push(1, []byte{0x04})
	r.MarkSent()
	r.Push(1, []byte{0x05})
	r.Push(1, []byte{0x06})
	assert.True(t, r.HeadSent())

	assert.True(t, r.Push(1, []byte{0x07}))
	assert.False(t, r.HeadSent(), "evicting the sent head clears the mark")

	var got []byte
	for _, e := range r.Entries() {
		got = append(got, e.Data[0])
	}
	assert.Equal(t, []byte{0x05, 0x06, 0x07}, got)

	r.MarkSent()
	r.Pop()
	assert.False(t, r.HeadSent())

	r.MarkSent()
	r.ClearSent()
	assert.False(t, r.HeadSent())

	r.MarkSent()
	r.Reset()
	assert.False(t, r.HeadSent())
}
