// Package gatt holds the attribute database of the keyboard: the service
// handler contract, range dispatch, the standard services other than HID, and
// the advertising payload.
package gatt

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

// Service handles the attributes in one handle range.
type Service interface {
	Name() string
	HandlesHandle(h uint16) bool
	OnRead(h uint16) (ble.AttStatus, []byte)
	OnWrite(h uint16, value []byte) ble.AttStatus
}

// Persistent is implemented by services that keep state in the store.
type Persistent interface {
	StoreSize() int
	// Load binds the service to its region. When fresh the region holds no
	// valid data and the service writes its defaults.
	Load(s store.Store, r store.Region, bonded, fresh bool) error
}

// Resettable is implemented by services with per-connection state, cleared
// on every session reinit.
type Resettable interface {
	Reset(bonded bool) error
}

// Definer is implemented by services that can describe themselves to
// adapters which build their own attribute table.
type Definer interface {
	Def() ble.ServiceDef
}

// ClientConfig is the value of a client characteristic configuration
// descriptor.
type ClientConfig uint16

const (
	ConfigNone     ClientConfig = 0x0000
	ConfigNotify   ClientConfig = 0x0001
	ConfigIndicate ClientConfig = 0x0002
)

// Notifying reports whether notifications are enabled.
func (c ClientConfig) Notifying() bool { return c&ConfigNotify != 0 }

// Bytes encodes c little-endian.
func (c ClientConfig) Bytes() []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(c))
}

// ParseClientConfig validates a descriptor write. Only notify and none are
// accepted; the keyboard never indicates.
func ParseClientConfig(v []byte) (ClientConfig, ble.AttStatus) {
	if len(v) != 2 {
		return 0, ble.AttInvalidLength
	}
	c := ClientConfig(binary.LittleEndian.Uint16(v))
	if c != ConfigNotify && c != ConfigNone {
		return 0, ble.AttImproperConfig
	}
	return c, ble.AttSuccess
}

// LoadClientConfig reads a descriptor saved with SaveClientConfig.
func LoadClientConfig(s store.Store, offset int) (ClientConfig, error) {
	v, err := store.ReadUint16(s, offset)
	if err != nil {
		return ConfigNone, err
	}
	c := ClientConfig(v)
	if c != ConfigNotify {
		c = ConfigNone
	}
	return c, nil
}

// SaveClientConfig persists a descriptor value.
func SaveClientConfig(s store.Store, offset int, c ClientConfig) error {
	return store.WriteUint16(s, offset, uint16(c))
}

// Database dispatches attribute accesses to the service owning the handle.
type Database struct {
	services []Service
}

// NewDatabase builds a database. Services are consulted in order, and
// persistent ones get their store regions in the same order.
func NewDatabase(services ...Service) *Database {
	return &Database{services: services}
}

// Services returns the registered services.
func (d *Database) Services() []Service { return d.services }

// Lookup returns the service owning h, or nil.
func (d *Database) Lookup(h uint16) Service {
	for _, s := range d.services {
		if s.HandlesHandle(h) {
			return s
		}
	}
	return nil
}

// Read serves a read of h. Unowned handles are not readable.
func (d *Database) Read(h uint16) (ble.AttStatus, []byte) {
	if s := d.Lookup(h); s != nil {
		return s.OnRead(h)
	}
	return ble.AttReadNotPermitted, nil
}

// Write serves a write of h. Unowned handles are not writable.
func (d *Database) Write(h uint16, value []byte) ble.AttStatus {
	if s := d.Lookup(h); s != nil {
		return s.OnWrite(h, value)
	}
	return ble.AttWriteNotPermitted
}

// Load allocates store regions and loads every persistent service.
func (d *Database) Load(s store.Store, bonded, fresh bool) error {
	layout := store.NewLayout()
	for _, svc := range d.services {
		p, ok := svc.(Persistent)
		if !ok {
			continue
		}
		r := layout.Alloc(p.StoreSize())
		if err := p.Load(s, r, bonded, fresh); err != nil {
			return fmt.Errorf("gatt: load %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Reset clears per-connection state of every service.
func (d *Database) Reset(bonded bool) error {
	for _, svc := range d.services {
		r, ok := svc.(Resettable)
		if !ok {
			continue
		}
		if err := r.Reset(bonded); err != nil {
			return fmt.Errorf("gatt: reset %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Defs describes every service that can describe itself.
func (d *Database) Defs() []ble.ServiceDef {
	var defs []ble.ServiceDef
	for _, svc := range d.services {
		if def, ok := svc.(Definer); ok {
			defs = append(defs, def.Def())
		}
	}
	return defs
}

func inRange(h, start, end uint16) bool { return h >= start && h <= end }
