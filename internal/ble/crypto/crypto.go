// Package crypto provides the identity-key primitives a privacy-aware
// peripheral needs: the random address hash function used to resolve and
// generate resolvable private addresses, and HKDF-SHA256 derivation of the
// local identity resolving key from a device seed.
//
// Addresses are handled in display order: byte 0 is the most significant
// octet, so prand occupies bytes 0..2 and the hash bytes 3..5.
package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// IRKSize is the length of an identity resolving key.
const IRKSize = 16

const (
	randomTypeMask       = 0xC0
	randomTypeResolvable = 0x40
)

// ErrZeroIRK is returned when an all-zero key is offered where a real key is required.
var ErrZeroIRK = errors.New("ble/crypto: identity key is all zeros")

// AH is the random address hash function: the low 24 bits of
// AES-128(irk, 0^104 || prand).
func AH(irk [IRKSize]byte, prand [3]byte) ([3]byte, error) {
	block, err := aes.NewCipher(irk[:])
	if err != nil {
		return [3]byte{}, fmt.Errorf("ble/crypto: new cipher: %w", err)
	}
	var in, out [aes.BlockSize]byte
	copy(in[13:], prand[:])
	block.Encrypt(out[:], in[:])

	var hash [3]byte
	copy(hash[:], out[13:])
	return hash, nil
}

// IsResolvable reports whether the two most significant bits mark mac as a
// resolvable private address.
func IsResolvable(mac [6]byte) bool {
	return mac[0]&randomTypeMask == randomTypeResolvable
}

// Resolve reports whether mac was generated from irk.
func Resolve(mac [6]byte, irk [IRKSize]byte) bool {
	if !IsResolvable(mac) || irk == ([IRKSize]byte{}) {
		return false
	}
	var prand [3]byte
	copy(prand[:], mac[:3])
	hash, err := AH(irk, prand)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hash[:], mac[3:]) == 1
}

// NewResolvableAddress generates a fresh resolvable private address for irk.
// r supplies the random part; pass nil to use crypto/rand.
func NewResolvableAddress(irk [IRKSize]byte, r io.Reader) ([6]byte, error) {
	if irk == ([IRKSize]byte{}) {
		return [6]byte{}, ErrZeroIRK
	}
	if r == nil {
		r = rand.Reader
	}
	var prand [3]byte
	for {
		if _, err := io.ReadFull(r, prand[:]); err != nil {
			return [6]byte{}, fmt.Errorf("ble/crypto: random prand: %w", err)
		}
		prand[0] = prand[0]&^randomTypeMask | randomTypeResolvable
		// The random part must not be all zeros or all ones.
		rest := [3]byte{prand[0] &^ randomTypeMask, prand[1], prand[2]}
		if rest != ([3]byte{}) && rest != ([3]byte{0x3F, 0xFF, 0xFF}) {
			break
		}
	}
	hash, err := AH(irk, prand)
	if err != nil {
		return [6]byte{}, err
	}
	var mac [6]byte
	copy(mac[:3], prand[:])
	copy(mac[3:], hash[:])
	return mac, nil
}

// DeriveIRK uses HKDF-SHA256 to derive the local identity resolving key from
// a device seed. The same seed always yields the same key.
func DeriveIRK(seed []byte, info string) ([IRKSize]byte, error) {
	var irk [IRKSize]byte
	if len(seed) == 0 {
		return irk, errors.New("ble/crypto: empty seed")
	}
	r := hkdf.New(sha256.New, seed, nil, []byte(info))
	if _, err := io.ReadFull(r, irk[:]); err != nil {
		return irk, fmt.Errorf("ble/crypto: HKDF: %w", err)
	}
	return irk, nil
}
