package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	roleA Role = iota + 1
	roleB
)

func newTestSet() (*Set, *Manual, *[]Expiry) {
	clk := NewManual(time.Unix(0, 0))
	var fired []Expiry
	s := NewSet(clk, func(e Expiry) { fired = append(fired, e) })
	return s, clk, &fired
}

func TestSetFiresOnce(t *testing.T) {
	s, clk, fired := newTestSet()
	gen := s.Start(roleA, time.Second)

	clk.Advance(999 * time.Millisecond)
	assert.Empty(t, *fired)

	clk.Advance(time.Millisecond)
	require.Len(t, *fired, 1)
	assert.Equal(t, Expiry{Role: roleA, Gen: gen}, (*fired)[0])
	assert.True(t, s.Claim((*fired)[0]))
	assert.False(t, s.Running(roleA))
}

func TestSetRestartCancelsPrevious(t *testing.T) {
	s, clk, fired := newTestSet()
	s.Start(roleA, time.Second)
	clk.Advance(500 * time.Millisecond)
	gen := s.Start(roleA, time.Second)

	clk.Advance(600 * time.Millisecond)
	assert.Empty(t, *fired, "first instance must not fire after restart")

	clk.Advance(400 * time.Millisecond)
	require.Len(t, *fired, 1)
	assert.Equal(t, gen, (*fired)[0].Gen)
}

func TestClaimRejectsStaleGeneration(t *testing.T) {
	s, _, _ := newTestSet()
	old := s.Start(roleA, time.Second)
	cur := s.Start(roleA, time.Second)

	assert.False(t, s.Claim(Expiry{Role: roleA, Gen: old}))
	assert.True(t, s.Running(roleA), "stale claim must leave the live timer armed")
	assert.True(t, s.Claim(Expiry{Role: roleA, Gen: cur}))
}

func TestClaimAfterStop(t *testing.T) {
	s, _, _ := newTestSet()
	gen := s.Start(roleA, time.Second)
	require.True(t, s.Stop(roleA))
	assert.False(t, s.Claim(Expiry{Role: roleA, Gen: gen}))
	assert.False(t, s.Stop(roleA))
}

func TestRolesAreIndependent(t *testing.T) {
	s, clk, fired := newTestSet()
	s.Start(roleA, 2*time.Second)
	s.Start(roleB, time.Second)

	d, ok := s.Duration(roleA)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	clk.Advance(3 * time.Second)
	require.Len(t, *fired, 2)
	assert.Equal(t, roleB, (*fired)[0].Role)
	assert.Equal(t, roleA, (*fired)[1].Role)
}

func TestStopAll(t *testing.T) {
	s, clk, fired := newTestSet()
	s.Start(roleA, time.Second)
	s.Start(roleB, time.Second)
	s.StopAll()

	clk.Advance(time.Minute)
	assert.Empty(t, *fired)
	assert.Equal(t, 0, clk.Pending())
}
