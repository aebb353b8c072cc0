package gatt

import "github.com/chaz8081/blekbd/internal/ble"

// MaxAdvertDataLen is the legacy advertising payload limit.
const MaxAdvertDataLen = 31

// ShortNameLen is the length of the shortened local name.
const ShortNameLen = 8

// AD types.
const (
	adFlags          = 0x01
	adUUID16Complete = 0x03
	adNameShort      = 0x08
	adNameComplete   = 0x09
	adTxPower        = 0x0A
	adAppearance     = 0x19
)

// AD flag bits.
const (
	flagLimitedDiscoverable = 0x01
	flagNoBREDR             = 0x04
)

// AdvertOptions describe the payload of an undirected advert.
type AdvertOptions struct {
	Name         string
	Appearance   uint16
	TxPower      int8
	Services     []uint16
	Discoverable ble.DiscoverMode
}

// BuildAdvertisingData lays out the advertising and scan response payloads.
// The name goes, in order of preference: complete into the advertising data,
// complete into the scan response, shortened into the advertising data,
// truncated into the scan response.
func BuildAdvertisingData(o AdvertOptions) (adv, scanRsp []byte) {
	flags := byte(flagNoBREDR)
	if o.Discoverable == ble.DiscoverLimited {
		flags |= flagLimitedDiscoverable
	}
	adv = appendAD(adv, adFlags, flags)

	if len(o.Services) > 0 {
		var uuids []byte
		for _, u := range o.Services {
			uuids = append(uuids, byte(u), byte(u>>8))
		}
		adv = appendAD(adv, adUUID16Complete, uuids...)
	}
	adv = appendAD(adv, adAppearance, byte(o.Appearance), byte(o.Appearance>>8))
	scanRsp = appendAD(scanRsp, adTxPower, byte(o.TxPower))

	name := []byte(o.Name)
	if len(name) == 0 {
		return adv, scanRsp
	}
	switch {
	case len(name)+2 <= MaxAdvertDataLen-len(adv):
		adv = appendAD(adv, adNameComplete, name...)
	case len(name)+2 <= MaxAdvertDataLen-len(scanRsp):
		scanRsp = appendAD(scanRsp, adNameComplete, name...)
	case MaxAdvertDataLen-len(adv) >= ShortNameLen+2:
		adv = appendAD(adv, adNameShort, name[:ShortNameLen]...)
	default:
		if room := MaxAdvertDataLen - len(scanRsp) - 2; room > 0 {
			scanRsp = appendAD(scanRsp, adNameShort, name[:room]...)
		}
	}
	return adv, scanRsp
}

func appendAD(b []byte, typ byte, data ...byte) []byte {
	b = append(b, byte(len(data)+1), typ)
	return append(b, data...)
}
