package gatt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

func TestParseClientConfig(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		want   ClientConfig
		status ble.AttStatus
	}{
		{"notify", []byte{0x01, 0x00}, ConfigNotify, ble.AttSuccess},
		{"none", []byte{0x00, 0x00}, ConfigNone, ble.AttSuccess},
		{"indicate", []byte{0x02, 0x00}, 0, ble.AttImproperConfig},
		{"both", []byte{0x03, 0x00}, 0, ble.AttImproperConfig},
		{"short", []byte{0x01}, 0, ble.AttInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, status := ParseClientConfig(tt.in)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseDispatch(t *testing.T) {
	db := NewDatabase(NewBattery(80), NewBondMgmt())

	status, v := db.Read(HandleBatteryLevel)
	assert.Equal(t, ble.AttSuccess, status)
	assert.Equal(t, []byte{80}, v)

	status, _ = db.Read(0x0FFF)
	assert.Equal(t, ble.AttReadNotPermitted, status)
	assert.Equal(t, ble.AttWriteNotPermitted, db.Write(0x0FFF, []byte{1}))
	assert.Nil(t, db.Lookup(HandleHIDInputReport))
}

func TestDatabaseLoadAllocatesInOrder(t *testing.T) {
	m := store.NewMemory(128)
	_, fresh, err := store.Open(m)
	require.NoError(t, err)

	gap := NewGAP("Keyboard", 0x03C1, ble.ParamRequest{}, false)
	bat := NewBattery(100)
	db := NewDatabase(gap, bat)
	require.NoError(t, db.Load(m, false, fresh))

	assert.Equal(t, store.HeaderSize, gap.region.Offset)
	assert.Equal(t, store.HeaderSize+gapStoreSize, bat.region.Offset)
}

func TestGAPNamePersists(t *testing.T) {
	m := store.NewMemory(128)
	_, fresh, err := store.Open(m)
	require.NoError(t, err)

	gap := NewGAP("Keyboard", 0x03C1, ble.ParamRequest{}, false)
	require.NoError(t, NewDatabase(gap).Load(m, false, fresh))
	assert.Equal(t, ble.AttSuccess, gap.OnWrite(HandleDeviceName, []byte("Desk")))
	assert.Equal(t, ble.AttInvalidLength, gap.OnWrite(HandleDeviceName, []byte(strings.Repeat("x", MaxNameLen+1))))

	reloaded := NewGAP("Keyboard", 0x03C1, ble.ParamRequest{}, false)
	require.NoError(t, NewDatabase(reloaded).Load(m, false, false))
	assert.Equal(t, "Desk", reloaded.DeviceName())

	status, v := reloaded.OnRead(HandleAppearance)
	assert.Equal(t, ble.AttSuccess, status)
	assert.Equal(t, []byte{0xC1, 0x03}, v)
}

func TestGAPPrivacy(t *testing.T) {
	off := NewGAP("k", 0, ble.ParamRequest{}, false)
	assert.Equal(t, ble.AttWriteNotPermitted, off.OnWrite(HandleReconnectionAddr, make([]byte, 6)))
	_, ok := off.ReconnectionAddress()
	assert.False(t, ok)

	on := NewGAP("k", 0, ble.ParamRequest{}, true)
	assert.Equal(t, ble.AttSuccess, on.OnWrite(HandlePrivacyFlag, []byte{1}))
	assert.True(t, on.PrivacyEnabled())
	assert.Equal(t, ble.AttSuccess, on.OnWrite(HandleReconnectionAddr, []byte{1, 2, 3, 4, 5, 6}))
	addr, ok := on.ReconnectionAddress()
	require.True(t, ok)
	assert.Equal(t, ble.AddrRandom, addr.Type)
	assert.Equal(t, [6]byte{1, 2, 3, 4, 5, 6}, addr.MAC)
}

func TestBatteryConfigResetWhenUnbonded(t *testing.T) {
	m := store.NewMemory(128)
	_, fresh, err := store.Open(m)
	require.NoError(t, err)
	bat := NewBattery(50)
	require.NoError(t, NewDatabase(bat).Load(m, true, fresh))

	_, _, ok := bat.Notification()
	assert.False(t, ok)
	assert.Equal(t, ble.AttImproperConfig, bat.OnWrite(HandleBatteryLevelCCCD, []byte{2, 0}))
	assert.Equal(t, ble.AttSuccess, bat.OnWrite(HandleBatteryLevelCCCD, []byte{1, 0}))
	h, v, ok := bat.Notification()
	require.True(t, ok)
	assert.Equal(t, HandleBatteryLevel, h)
	assert.Equal(t, []byte{50}, v)

	reloaded := NewBattery(50)
	require.NoError(t, NewDatabase(reloaded).Load(m, true, false))
	_, _, ok = reloaded.Notification()
	assert.True(t, ok, "bonded config survives reload")

	require.NoError(t, reloaded.Reset(false))
	_, _, ok = reloaded.Notification()
	assert.False(t, ok)
}

func TestScanParams(t *testing.T) {
	p := NewScanParams()
	assert.Equal(t, ble.AttInvalidLength, p.OnWrite(HandleScanIntervalWindow, []byte{1, 2}))
	assert.Equal(t, ble.AttSuccess, p.OnWrite(HandleScanIntervalWindow, []byte{0x10, 0x00, 0x08, 0x00}))
	interval, window := p.IntervalWindow()
	assert.Equal(t, uint16(0x10), interval)
	assert.Equal(t, uint16(0x08), window)

	assert.Equal(t, ble.AttSuccess, p.OnWrite(HandleScanRefreshCCCD, []byte{1, 0}))
	h, v, ok := p.RefreshNotification()
	require.True(t, ok)
	assert.Equal(t, HandleScanRefresh, h)
	assert.Equal(t, []byte{0}, v)
}

func TestDevInfoPnPID(t *testing.T) {
	d := NewDevInfo(DeviceInfo{VendorID: 0x000A, ProductID: 0x014C, ProductVersion: 0x0100})
	status, v := d.OnRead(HandlePnPID)
	assert.Equal(t, ble.AttSuccess, status)
	assert.Equal(t, []byte{0x02, 0x0A, 0x00, 0x4C, 0x01, 0x00, 0x01}, v)
	assert.Equal(t, ble.AttWriteNotPermitted, d.OnWrite(HandlePnPID, []byte{0}))
}

func TestBondMgmt(t *testing.T) {
	b := NewBondMgmt()
	calls := 0
	b.OnDelete = func() { calls++ }

	status, v := b.OnRead(HandleBondMgmtFeature)
	assert.Equal(t, ble.AttSuccess, status)
	assert.Equal(t, []byte{0x10}, v)

	assert.Equal(t, ble.AttOpcodeNotSupported, b.OnWrite(HandleBondMgmtControl, []byte{0x01}))
	assert.False(t, b.DeletionRequested())
	assert.Equal(t, ble.AttSuccess, b.OnWrite(HandleBondMgmtControl, []byte{0x03}))
	assert.True(t, b.DeletionRequested())
	assert.Equal(t, 1, calls)

	status, _ = b.OnRead(HandleBondMgmtControl)
	assert.Equal(t, ble.AttReadNotPermitted, status)
}

func TestOTAResetRequired(t *testing.T) {
	o := NewOTA()
	assert.False(t, o.ResetRequired())
	assert.Equal(t, ble.AttInvalidLength, o.OnWrite(HandleOTAControl, nil))
	assert.Equal(t, ble.AttSuccess, o.OnWrite(HandleOTAControl, []byte{1}))
	assert.True(t, o.ResetRequired())
}

func TestBuildAdvertisingData(t *testing.T) {
	adv, scan := BuildAdvertisingData(AdvertOptions{
		Name:         "KB",
		Appearance:   0x03C1,
		TxPower:      4,
		Services:     []uint16{UUIDHIDService},
		Discoverable: ble.DiscoverLimited,
	})
	want := []byte{
		0x02, 0x01, 0x05,
		0x03, 0x03, 0x12, 0x18,
		0x03, 0x19, 0xC1, 0x03,
		0x03, 0x09, 'K', 'B',
	}
	assert.Equal(t, want, adv)
	assert.Equal(t, []byte{0x02, 0x0A, 0x04}, scan)
}

func TestBuildAdvertisingDataNamePlacement(t *testing.T) {
	base := AdvertOptions{Appearance: 0x03C1, Services: []uint16{UUIDHIDService}}

	// 11 bytes used in adv data: 18 characters still fit.
	o := base
	o.Name = strings.Repeat("a", 18)
	adv, scan := BuildAdvertisingData(o)
	assert.Len(t, adv, MaxAdvertDataLen)
	assert.Len(t, scan, 3)

	o.Name = strings.Repeat("b", 19)
	adv, scan = BuildAdvertisingData(o)
	assert.Len(t, adv, 11)
	assert.Equal(t, byte(adNameComplete), scan[4])

	o.Name = strings.Repeat("c", 40)
	adv, scan = BuildAdvertisingData(o)
	assert.Equal(t, byte(adNameShort), adv[12])
	assert.Equal(t, byte(ShortNameLen+1), adv[11])
	assert.Len(t, scan, 3)

	// No room for the shortened name in adv data: truncate into the scan response.
	o.Services = []uint16{1, 2, 3, 4, 5, 6, 7}
	adv, scan = BuildAdvertisingData(o)
	assert.Len(t, adv, 3+16+4)
	assert.Len(t, scan, MaxAdvertDataLen)
	assert.Equal(t, byte(adNameShort), scan[4])

	o.Discoverable = ble.DiscoverNone
	adv, _ = BuildAdvertisingData(o)
	assert.Equal(t, byte(flagNoBREDR), adv[2])
}
