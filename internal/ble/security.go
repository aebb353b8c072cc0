package ble

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	blecrypto "github.com/chaz8081/blekbd/internal/ble/crypto"
)

// LocalSecurity answers Security Manager requests in software. It is used
// where the platform stack owns pairing and only address resolution and
// private address generation remain local.
type LocalSecurity struct {
	// IRK is this device's identity resolving key.
	IRK IRK
	// Rand is the entropy source for private addresses; crypto/rand if nil.
	Rand io.Reader
	// OnPasskey, if set, observes submitted passkeys. ok is false for a
	// negative reply.
	OnPasskey func(peer Addr, passkey uint32, ok bool)
}

func (s *LocalSecurity) PairingAuthResponse(c ConnHandle, accept bool) {
	slog.Debug("[BLE] pairing auth response", "conn", c, "accept", accept)
}

func (s *LocalSecurity) DivApproval(c ConnHandle, approve bool) {
	slog.Debug("[BLE] div approval", "conn", c, "approve", approve)
}

func (s *LocalSecurity) PasskeyInput(peer Addr, passkey uint32) {
	slog.Debug("[BLE] passkey submitted", "peer", peer)
	if s.OnPasskey != nil {
		s.OnPasskey(peer, passkey, true)
	}
}

func (s *LocalSecurity) PasskeyNegative(peer Addr) {
	slog.Debug("[BLE] passkey rejected", "peer", peer)
	if s.OnPasskey != nil {
		s.OnPasskey(peer, 0, false)
	}
}

func (s *LocalSecurity) MatchAddress(peer Addr, irk IRK) bool {
	if !peer.IsResolvableRandom() || irk.IsZero() {
		return false
	}
	return blecrypto.Resolve(peer.MAC, irk)
}

func (s *LocalSecurity) RegenerateAddress() (Addr, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	mac, err := blecrypto.NewResolvableAddress(s.IRK, r)
	if err != nil {
		return Addr{}, fmt.Errorf("ble: regenerate address: %w", err)
	}
	return Addr{Type: AddrRandom, MAC: mac}, nil
}

var _ Security = (*LocalSecurity)(nil)
