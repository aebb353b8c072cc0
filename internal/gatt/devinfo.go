package gatt

import (
	"encoding/binary"

	"github.com/chaz8081/blekbd/internal/ble"
)

// vendorIDSourceUSB marks the PnP vendor ID as USB-IF assigned.
const vendorIDSourceUSB = 0x02

// DeviceInfo describes the product. All fields are read-only.
type DeviceInfo struct {
	Manufacturer     string
	Model            string
	Serial           string
	HardwareRevision string
	FirmwareRevision string
	SoftwareRevision string
	VendorID         uint16
	ProductID        uint16
	ProductVersion   uint16
}

// DevInfo is the Device Information service.
type DevInfo struct {
	info DeviceInfo
}

func NewDevInfo(info DeviceInfo) *DevInfo { return &DevInfo{info: info} }

func (d *DevInfo) Name() string { return "device information" }

func (d *DevInfo) HandlesHandle(h uint16) bool {
	return inRange(h, HandleDevInfoService, HandleDevInfoServiceEnd)
}

// PnPID encodes the PnP ID characteristic.
func (d *DevInfo) PnPID() []byte {
	b := []byte{vendorIDSourceUSB}
	b = binary.LittleEndian.AppendUint16(b, d.info.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.info.ProductID)
	return binary.LittleEndian.AppendUint16(b, d.info.ProductVersion)
}

func (d *DevInfo) value(h uint16) ([]byte, bool) {
	switch h {
	case HandleManufacturerName:
		return []byte(d.info.Manufacturer), true
	case HandleModelNumber:
		return []byte(d.info.Model), true
	case HandleSerialNumber:
		return []byte(d.info.Serial), true
	case HandleHardwareRevision:
		return []byte(d.info.HardwareRevision), true
	case HandleFirmwareRevision:
		return []byte(d.info.FirmwareRevision), true
	case HandleSoftwareRevision:
		return []byte(d.info.SoftwareRevision), true
	case HandlePnPID:
		return d.PnPID(), true
	}
	return nil, false
}

func (d *DevInfo) OnRead(h uint16) (ble.AttStatus, []byte) {
	if v, ok := d.value(h); ok {
		return ble.AttSuccess, v
	}
	return ble.AttReadNotPermitted, nil
}

func (d *DevInfo) OnWrite(uint16, []byte) ble.AttStatus { return ble.AttWriteNotPermitted }

func (d *DevInfo) Def() ble.ServiceDef {
	chars := []struct {
		uuid   uint16
		handle uint16
	}{
		{UUIDManufacturerName, HandleManufacturerName},
		{UUIDModelNumber, HandleModelNumber},
		{UUIDSerialNumber, HandleSerialNumber},
		{UUIDHardwareRevision, HandleHardwareRevision},
		{UUIDFirmwareRevision, HandleFirmwareRevision},
		{UUIDSoftwareRevision, HandleSoftwareRevision},
		{UUIDPnPID, HandlePnPID},
	}
	def := ble.ServiceDef{UUID: ble.UUID16(UUIDDevInfoService)}
	for _, c := range chars {
		v, _ := d.value(c.handle)
		def.Chars = append(def.Chars, ble.CharDef{
			UUID: ble.UUID16(c.uuid), Handle: c.handle, Flags: ble.CharRead, Value: v,
		})
	}
	return def
}
