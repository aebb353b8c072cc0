package hid

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/store"
)

// ProtocolMode selects boot or report protocol.
type ProtocolMode uint8

const (
	BootMode   ProtocolMode = 0
	ReportMode ProtocolMode = 1
)

func (m ProtocolMode) String() string {
	if m == BootMode {
		return "boot"
	}
	return "report"
}

// Control point commands.
const (
	controlSuspend     = 0x00
	controlExitSuspend = 0x01
)

// HID information flags.
const (
	InfoRemoteWake          uint8 = 0x01
	InfoNormallyConnectable uint8 = 0x02
)

const bcdHID = 0x0111

// Store layout of the service region.
const (
	fieldBootInputConfig = 0
	fieldInputConfig     = 2
	fieldConsumerConfig  = 4
	serviceStoreSize     = 6
)

// ServiceOptions configure the HID service.
type ServiceOptions struct {
	// Flags is the HID information flags byte.
	Flags uint8
	// CountryCode is the HID information country code.
	CountryCode uint8
	// OnLEDs receives every output report. It is also called with 0 on reset.
	OnLEDs func(LEDs)
}

// Service is the HID over GATT service.
type Service struct {
	opts ServiceOptions

	inputCfg     gatt.ClientConfig
	bootInputCfg gatt.ClientConfig
	consumerCfg  gatt.ClientConfig

	mode      ProtocolMode
	suspended bool
	// notifyEnable follows the CCCD of the input report of the current mode.
	notifyEnable bool

	lastInput    [InputReportLen]byte
	lastConsumer [ConsumerReportLen]byte
	output       uint8

	st     store.Store
	region store.Region
}

// NewService creates the service in report mode.
func NewService(opts ServiceOptions) *Service {
	return &Service{opts: opts, mode: ReportMode}
}

func (s *Service) Name() string { return "hid" }

// Mode returns the current protocol mode.
func (s *Service) Mode() ProtocolMode { return s.mode }

// Suspended reports whether the host has suspended the device.
func (s *Service) Suspended() bool { return s.suspended }

// NotifyEnabled reports whether reports with id may be notified.
func (s *Service) NotifyEnabled(id uint8) bool {
	switch id {
	case InputReportID:
		return s.notifyEnable
	case ConsumerReportID:
		return s.consumerCfg.Notifying()
	default:
		return false
	}
}

// NotificationsEnabled reports whether the host can receive key data: the
// input report in boot mode, input and consumer reports in report mode.
func (s *Service) NotificationsEnabled() bool {
	if s.mode == ReportMode {
		return s.notifyEnable && s.consumerCfg.Notifying()
	}
	return s.notifyEnable
}

// ReportHandle returns the characteristic that carries reports with id in the
// current protocol mode. Consumer reports have none in boot mode.
func (s *Service) ReportHandle(id uint8) (uint16, bool) {
	switch id {
	case InputReportID:
		if s.mode == BootMode {
			return gatt.HandleHIDBootInputReport, true
		}
		return gatt.HandleHIDInputReport, true
	case ConsumerReportID:
		return gatt.HandleHIDConsumerReport, s.mode == ReportMode
	default:
		return gatt.InvalidHandle, false
	}
}

// Sent records a report handed to the link, for later reads.
func (s *Service) Sent(id uint8, data []byte) {
	switch id {
	case InputReportID:
		copy(s.lastInput[:], data)
	case ConsumerReportID:
		copy(s.lastConsumer[:], data)
	}
}

func (s *Service) HandlesHandle(h uint16) bool {
	return h >= gatt.HandleHIDService && h <= gatt.HandleHIDServiceEnd
}

func (s *Service) StoreSize() int { return serviceStoreSize }

func (s *Service) Load(st store.Store, r store.Region, bonded, fresh bool) error {
	s.st, s.region = st, r
	if fresh || !bonded {
		return s.Reset(false)
	}
	var err error
	if s.bootInputCfg, err = gatt.LoadClientConfig(st, r.At(fieldBootInputConfig)); err != nil {
		return fmt.Errorf("hid: read boot input config: %w", err)
	}
	if s.inputCfg, err = gatt.LoadClientConfig(st, r.At(fieldInputConfig)); err != nil {
		return fmt.Errorf("hid: read input config: %w", err)
	}
	if s.consumerCfg, err = gatt.LoadClientConfig(st, r.At(fieldConsumerConfig)); err != nil {
		return fmt.Errorf("hid: read consumer config: %w", err)
	}
	return s.Reset(true)
}

// Reset returns to report mode and clears per-connection state. Unbonded
// devices also forget every client configuration.
func (s *Service) Reset(bonded bool) error {
	s.lastInput = [InputReportLen]byte{}
	s.lastConsumer = [ConsumerReportLen]byte{}
	s.output = 0
	s.notifyEnable = false
	s.mode = ReportMode
	s.suspended = false
	if s.opts.OnLEDs != nil {
		s.opts.OnLEDs(0)
	}

	if !bonded {
		s.inputCfg, s.bootInputCfg, s.consumerCfg = gatt.ConfigNone, gatt.ConfigNone, gatt.ConfigNone
		for _, f := range []int{fieldBootInputConfig, fieldInputConfig, fieldConsumerConfig} {
			if err := s.save(f, gatt.ConfigNone); err != nil {
				return err
			}
		}
		return nil
	}
	s.notifyEnable = s.inputCfg.Notifying()
	return nil
}

func (s *Service) save(field int, c gatt.ClientConfig) error {
	if s.st == nil {
		return nil
	}
	if err := gatt.SaveClientConfig(s.st, s.region.At(field), c); err != nil {
		return fmt.Errorf("hid: write client config: %w", err)
	}
	return nil
}

func (s *Service) updateInputConfig(c gatt.ClientConfig) {
	s.notifyEnable = c.Notifying()
}

func (s *Service) info() []byte {
	b := binary.LittleEndian.AppendUint16(nil, bcdHID)
	return append(b, s.opts.CountryCode, s.opts.Flags)
}

func (s *Service) OnRead(h uint16) (ble.AttStatus, []byte) {
	switch h {
	case gatt.HandleHIDInputCCCD:
		return ble.AttSuccess, s.inputCfg.Bytes()
	case gatt.HandleHIDBootInputCCCD:
		return ble.AttSuccess, s.bootInputCfg.Bytes()
	case gatt.HandleHIDConsumerCCCD:
		return ble.AttSuccess, s.consumerCfg.Bytes()
	case gatt.HandleHIDInputReport, gatt.HandleHIDBootInputReport:
		return ble.AttSuccess, append([]byte(nil), s.lastInput[:]...)
	case gatt.HandleHIDConsumerReport:
		return ble.AttSuccess, append([]byte(nil), s.lastConsumer[:]...)
	case gatt.HandleHIDProtocolMode:
		return ble.AttSuccess, []byte{byte(s.mode)}
	case gatt.HandleHIDOutputReport, gatt.HandleHIDBootOutputReport:
		return ble.AttSuccess, []byte{s.output}
	case gatt.HandleHIDReportMap:
		return ble.AttSuccess, append([]byte(nil), ReportMap...)
	case gatt.HandleHIDInformation:
		return ble.AttSuccess, s.info()
	default:
		return ble.AttReadNotPermitted, nil
	}
}

func (s *Service) OnWrite(h uint16, v []byte) ble.AttStatus {
	switch h {
	case gatt.HandleHIDInputCCCD, gatt.HandleHIDBootInputCCCD:
		c, status := gatt.ParseClientConfig(v)
		if status != ble.AttSuccess {
			return status
		}
		field, active := fieldInputConfig, s.mode == ReportMode
		if h == gatt.HandleHIDInputCCCD {
			s.inputCfg = c
		} else {
			s.bootInputCfg = c
			field, active = fieldBootInputConfig, s.mode == BootMode
		}
		if err := s.save(field, c); err != nil {
			return ble.AttWriteNotPermitted
		}
		if active {
			s.updateInputConfig(c)
		}
		return ble.AttSuccess

	case gatt.HandleHIDConsumerCCCD:
		c, status := gatt.ParseClientConfig(v)
		if status != ble.AttSuccess {
			return status
		}
		// Consumer reports only exist in report mode.
		if s.mode == ReportMode {
			s.consumerCfg = c
			if err := s.save(fieldConsumerConfig, c); err != nil {
				return ble.AttWriteNotPermitted
			}
		}
		return ble.AttSuccess

	case gatt.HandleHIDOutputReport, gatt.HandleHIDBootOutputReport:
		if len(v) != OutputReportLen {
			return ble.AttInvalidLength
		}
		s.output = v[0]
		if s.opts.OnLEDs != nil {
			s.opts.OnLEDs(LEDs(v[0]))
		}
		return ble.AttSuccess

	case gatt.HandleHIDControlPoint:
		if len(v) == 0 {
			return ble.AttInvalidLength
		}
		switch v[0] {
		case controlSuspend:
			s.suspended = true
		case controlExitSuspend:
			s.suspended = false
		}
		return ble.AttSuccess

	case gatt.HandleHIDProtocolMode:
		if len(v) == 0 {
			return ble.AttInvalidLength
		}
		mode := ProtocolMode(v[0])
		if (mode != BootMode && mode != ReportMode) || mode == s.mode {
			return ble.AttSuccess
		}
		s.mode = mode
		if mode == BootMode {
			s.updateInputConfig(s.bootInputCfg)
		} else {
			s.updateInputConfig(s.inputCfg)
		}
		return ble.AttSuccess

	default:
		return ble.AttWriteNotPermitted
	}
}

func (s *Service) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID16(gatt.UUIDHIDService),
		Chars: []ble.CharDef{
			{UUID: ble.UUID16(gatt.UUIDHIDProtocolMode), Handle: gatt.HandleHIDProtocolMode, Flags: ble.CharRead | ble.CharWriteNoResponse, Value: []byte{byte(ReportMode)}},
			{UUID: ble.UUID16(gatt.UUIDHIDReport), Handle: gatt.HandleHIDInputReport, CCCD: gatt.HandleHIDInputCCCD, Flags: ble.CharRead | ble.CharNotify, Value: make([]byte, InputReportLen)},
			{UUID: ble.UUID16(gatt.UUIDHIDReport), Handle: gatt.HandleHIDOutputReport, Flags: ble.CharRead | ble.CharWrite | ble.CharWriteNoResponse, Value: []byte{0}},
			{UUID: ble.UUID16(gatt.UUIDHIDReport), Handle: gatt.HandleHIDConsumerReport, CCCD: gatt.HandleHIDConsumerCCCD, Flags: ble.CharRead | ble.CharNotify, Value: make([]byte, ConsumerReportLen)},
			{UUID: ble.UUID16(gatt.UUIDHIDReportMap), Handle: gatt.HandleHIDReportMap, Flags: ble.CharRead, Value: ReportMap},
			{UUID: ble.UUID16(gatt.UUIDHIDBootInput), Handle: gatt.HandleHIDBootInputReport, CCCD: gatt.HandleHIDBootInputCCCD, Flags: ble.CharRead | ble.CharNotify, Value: make([]byte, InputReportLen)},
			{UUID: ble.UUID16(gatt.UUIDHIDBootOutput), Handle: gatt.HandleHIDBootOutputReport, Flags: ble.CharRead | ble.CharWrite | ble.CharWriteNoResponse, Value: []byte{0}},
			{UUID: ble.UUID16(gatt.UUIDHIDInformation), Handle: gatt.HandleHIDInformation, Flags: ble.CharRead, Value: s.info()},
			{UUID: ble.UUID16(gatt.UUIDHIDControlPoint), Handle: gatt.HandleHIDControlPoint, Flags: ble.CharWriteNoResponse},
		},
	}
}
