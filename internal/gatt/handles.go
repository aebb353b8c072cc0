package gatt

// Attribute handles of the keyboard database. Each service owns a contiguous
// range; values are the characteristic value handles unless noted.
const (
	HandleGAPService       uint16 = 0x0001
	HandleDeviceName       uint16 = 0x0003
	HandleAppearance       uint16 = 0x0005
	HandlePrivacyFlag      uint16 = 0x0007
	HandleReconnectionAddr uint16 = 0x0009
	HandlePreferredParams  uint16 = 0x000B
	HandleGAPServiceEnd    uint16 = 0x000B

	HandleHIDService          uint16 = 0x0010
	HandleHIDProtocolMode     uint16 = 0x0012
	HandleHIDInputReport      uint16 = 0x0014
	HandleHIDInputCCCD        uint16 = 0x0015
	HandleHIDOutputReport     uint16 = 0x0018
	HandleHIDConsumerReport   uint16 = 0x001B
	HandleHIDConsumerCCCD     uint16 = 0x001C
	HandleHIDReportMap        uint16 = 0x001F
	HandleHIDBootInputReport  uint16 = 0x0021
	HandleHIDBootInputCCCD    uint16 = 0x0022
	HandleHIDBootOutputReport uint16 = 0x0024
	HandleHIDInformation      uint16 = 0x0026
	HandleHIDControlPoint     uint16 = 0x0028
	HandleHIDServiceEnd       uint16 = 0x0028

	HandleBootService    uint16 = 0x0030
	HandleBootReport     uint16 = 0x0032
	HandleBootReportCCCD uint16 = 0x0033
	HandleBootServiceEnd uint16 = 0x0033

	HandleBatteryService    uint16 = 0x0040
	HandleBatteryLevel      uint16 = 0x0042
	HandleBatteryLevelCCCD  uint16 = 0x0043
	HandleBatteryServiceEnd uint16 = 0x0043

	HandleScanParamService    uint16 = 0x0050
	HandleScanIntervalWindow  uint16 = 0x0052
	HandleScanRefresh         uint16 = 0x0054
	HandleScanRefreshCCCD     uint16 = 0x0055
	HandleScanParamServiceEnd uint16 = 0x0055

	HandleDevInfoService    uint16 = 0x0060
	HandleManufacturerName  uint16 = 0x0062
	HandleModelNumber       uint16 = 0x0064
	HandleSerialNumber      uint16 = 0x0066
	HandleHardwareRevision  uint16 = 0x0068
	HandleFirmwareRevision  uint16 = 0x006A
	HandleSoftwareRevision  uint16 = 0x006C
	HandlePnPID             uint16 = 0x006E
	HandleDevInfoServiceEnd uint16 = 0x006E

	HandleBondMgmtService    uint16 = 0x0070
	HandleBondMgmtControl    uint16 = 0x0072
	HandleBondMgmtFeature    uint16 = 0x0074
	HandleBondMgmtServiceEnd uint16 = 0x0074

	HandleOTAService    uint16 = 0x0080
	HandleOTAVersion    uint16 = 0x0082
	HandleOTAControl    uint16 = 0x0084
	HandleOTAServiceEnd uint16 = 0x0084
)

// InvalidHandle marks an unset attribute handle.
const InvalidHandle uint16 = 0x0000

// Assigned numbers used by the database.
const (
	UUIDGAPService       uint16 = 0x1800
	UUIDDevInfoService   uint16 = 0x180A
	UUIDBatteryService   uint16 = 0x180F
	UUIDHIDService       uint16 = 0x1812
	UUIDScanParamService uint16 = 0x1813
	UUIDBondMgmtService  uint16 = 0x181E

	UUIDDeviceName         uint16 = 0x2A00
	UUIDAppearance         uint16 = 0x2A01
	UUIDPrivacyFlag        uint16 = 0x2A02
	UUIDReconnectionAddr   uint16 = 0x2A03
	UUIDPreferredParams    uint16 = 0x2A04
	UUIDBatteryLevel       uint16 = 0x2A19
	UUIDScanIntervalWindow uint16 = 0x2A4F
	UUIDScanRefresh        uint16 = 0x2A31
	UUIDManufacturerName   uint16 = 0x2A29
	UUIDModelNumber        uint16 = 0x2A24
	UUIDSerialNumber       uint16 = 0x2A25
	UUIDHardwareRevision   uint16 = 0x2A27
	UUIDFirmwareRevision   uint16 = 0x2A26
	UUIDSoftwareRevision   uint16 = 0x2A28
	UUIDPnPID              uint16 = 0x2A50
	UUIDBondMgmtControl    uint16 = 0x2AA4
	UUIDBondMgmtFeature    uint16 = 0x2AA5
	UUIDHIDInformation     uint16 = 0x2A4A
	UUIDHIDReportMap       uint16 = 0x2A4B
	UUIDHIDControlPoint    uint16 = 0x2A4C
	UUIDHIDReport          uint16 = 0x2A4D
	UUIDHIDProtocolMode    uint16 = 0x2A4E
	UUIDHIDBootInput       uint16 = 0x2A22
	UUIDHIDBootOutput      uint16 = 0x2A32
)

// Vendor UUIDs.
const (
	UUIDOTAService     = "00001016-d102-11e1-9b23-00025b00a5a5"
	UUIDOTAVersion     = "00001011-d102-11e1-9b23-00025b00a5a5"
	UUIDOTAControl     = "00001013-d102-11e1-9b23-00025b00a5a5"
	UUIDBootService    = "00001001-2a9d-4f5b-b1a3-6b26a5a1e6c2"
	UUIDBootReportChar = "00001002-2a9d-4f5b-b1a3-6b26a5a1e6c2"
)
