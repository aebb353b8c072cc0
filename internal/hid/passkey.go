package hid

// PasskeyDigits is the length of a pairing passkey.
const PasskeyDigits = 6

// PasskeyEntry accumulates a passkey typed on the keyboard, one key per raw
// report.
type PasskeyEntry struct {
	value  uint32
	digits int
}

// Reset discards any digits typed so far.
func (p *PasskeyEntry) Reset() { *p = PasskeyEntry{} }

// Digits returns the number of digit keys seen.
func (p *PasskeyEntry) Digits() int { return p.digits }

// Feed consumes one raw report. done is set on Enter; ok then tells whether
// exactly six digits were typed and value holds the passkey.
func (p *PasskeyEntry) Feed(raw RawReport) (value uint32, done, ok bool) {
	key := raw[2]
	switch {
	case key > KeyZ && key < KeyEnter:
		if p.digits < PasskeyDigits {
			p.value = p.value*10 + uint32(key-KeyZ)%10
		}
		p.digits++
	case key == KeyEnter:
		value, ok = p.value, p.digits == PasskeyDigits
		p.Reset()
		return value, true, ok
	}
	return 0, false, false
}
