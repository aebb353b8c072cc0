package ble

import (
	"fmt"
	"strings"
)

// UUID is a 128-bit UUID in canonical string form.
type UUID string

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// UUID16 expands a 16-bit SIG-assigned UUID.
func UUID16(v uint16) UUID {
	return UUID(fmt.Sprintf("0000%04x%s", v, baseUUIDSuffix))
}

// Short returns the 16-bit form of a SIG-assigned UUID.
func (u UUID) Short() (uint16, bool) {
	s := strings.ToLower(string(u))
	if len(s) != 36 || !strings.HasPrefix(s, "0000") || !strings.HasSuffix(s, baseUUIDSuffix) {
		return 0, false
	}
	var v uint16
	if _, err := fmt.Sscanf(s[4:8], "%04x", &v); err != nil {
		return 0, false
	}
	return v, true
}

// CharFlags are the properties of a characteristic.
type CharFlags uint8

const (
	CharRead CharFlags = 1 << iota
	CharWrite
	CharWriteNoResponse
	CharNotify
)

// CharDef declares one characteristic of a service.
type CharDef struct {
	UUID   UUID
	Handle uint16
	// CCCD is the handle of the client configuration descriptor, 0 if none.
	CCCD  uint16
	Flags CharFlags
	Value []byte
}

// ServiceDef declares a primary service for adapters that build their own
// attribute table.
type ServiceDef struct {
	UUID  UUID
	Chars []CharDef
}
