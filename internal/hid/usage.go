package hid

// Modifier bits of byte 0 of a keyboard report.
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// Keyboard/Keypad page usage IDs.
const (
	KeyNone = 0x00

	KeyA = 0x04
	KeyB = 0x05
	KeyC = 0x06
	KeyD = 0x07
	KeyE = 0x08
	KeyF = 0x09
	KeyG = 0x0A
	KeyH = 0x0B
	KeyI = 0x0C
	KeyJ = 0x0D
	KeyK = 0x0E
	KeyL = 0x0F
	KeyM = 0x10
	KeyN = 0x11
	KeyO = 0x12
	KeyP = 0x13
	KeyQ = 0x14
	KeyR = 0x15
	KeyS = 0x16
	KeyT = 0x17
	KeyU = 0x18
	KeyV = 0x19
	KeyW = 0x1A
	KeyX = 0x1B
	KeyY = 0x1C
	KeyZ = 0x1D

	Key1 = 0x1E
	Key2 = 0x1F
	Key3 = 0x20
	Key4 = 0x21
	Key5 = 0x22
	Key6 = 0x23
	Key7 = 0x24
	Key8 = 0x25
	Key9 = 0x26
	Key0 = 0x27

	KeyEnter      = 0x28
	KeyEscape     = 0x29
	KeyBackspace  = 0x2A
	KeyTab        = 0x2B
	KeySpace      = 0x2C
	KeyMinus      = 0x2D
	KeyEqual      = 0x2E
	KeyLeftBrace  = 0x2F
	KeyRightBrace = 0x30
	KeyBackslash  = 0x31
	KeySemicolon  = 0x33
	KeyApostrophe = 0x34
	KeyGrave      = 0x35
	KeyComma      = 0x36
	KeyPeriod     = 0x37
	KeySlash      = 0x38
	KeyCapsLock   = 0x39

	KeyF1  = 0x3A
	KeyF2  = 0x3B
	KeyF3  = 0x3C
	KeyF4  = 0x3D
	KeyF5  = 0x3E
	KeyF6  = 0x3F
	KeyF7  = 0x40
	KeyF8  = 0x41
	KeyF9  = 0x42
	KeyF10 = 0x43
	KeyF11 = 0x44
	KeyF12 = 0x45

	KeyPrintScreen = 0x46
	KeyScrollLock  = 0x47
	KeyPause       = 0x48
	KeyInsert      = 0x49
	KeyHome        = 0x4A
	KeyPageUp      = 0x4B
	KeyDelete      = 0x4C
	KeyEnd         = 0x4D
	KeyPageDown    = 0x4E
	KeyRight       = 0x4F
	KeyLeft        = 0x50
	KeyDown        = 0x51
	KeyUp          = 0x52
	KeyNumLock     = 0x53

	// Usages 0xE0-0xE7 are the modifiers; reports carry them as bits.
	KeyLeftCtrl   = 0xE0
	KeyLeftShift  = 0xE1
	KeyLeftAlt    = 0xE2
	KeyLeftGUI    = 0xE3
	KeyRightCtrl  = 0xE4
	KeyRightShift = 0xE5
	KeyRightAlt   = 0xE6
	KeyRightGUI   = 0xE7
)

// Pseudo usages above the keyboard page that select a consumer control.
const (
	ConsumerKeysBase = 0xF1

	KeyConsumerMute    = 0xF1
	KeyConsumerVolDown = 0xF2
	KeyConsumerVolUp   = 0xF3
	KeyConsumerHome    = 0xF4
	KeyConsumerEmail   = 0xF5
)

// consumerUsages maps pseudo usages, from ConsumerKeysBase, to Consumer page
// usage IDs.
var consumerUsages = [...]uint16{
	0x00E2, // Mute
	0x00EA, // Volume Down
	0x00E9, // Volume Up
	0x0223, // AC Home
	0x018A, // AL Email Reader
}

// ConsumerUsage returns the Consumer page usage for a pseudo usage.
func ConsumerUsage(key uint8) (uint16, bool) {
	if key < ConsumerKeysBase || int(key-ConsumerKeysBase) >= len(consumerUsages) {
		return 0, false
	}
	return consumerUsages[key-ConsumerKeysBase], true
}

// IsModifier reports whether key is one of the modifier usages.
func IsModifier(key uint8) bool { return key >= KeyLeftCtrl && key <= KeyRightGUI }

// ModifierBit returns the report bit for a modifier usage.
func ModifierBit(key uint8) uint8 {
	if !IsModifier(key) {
		return 0
	}
	return 1 << (key - KeyLeftCtrl)
}

// CharToKey maps ASCII characters to usage IDs. Characters in ShiftChars
// need ModLeftShift.
var CharToKey = map[byte]uint8{
	'a': KeyA, 'b': KeyB, 'c': KeyC, 'd': KeyD, 'e': KeyE, 'f': KeyF, 'g': KeyG,
	'h': KeyH, 'i': KeyI, 'j': KeyJ, 'k': KeyK, 'l': KeyL, 'm': KeyM, 'n': KeyN,
	'o': KeyO, 'p': KeyP, 'q': KeyQ, 'r': KeyR, 's': KeyS, 't': KeyT, 'u': KeyU,
	'v': KeyV, 'w': KeyW, 'x': KeyX, 'y': KeyY, 'z': KeyZ,

	'A': KeyA, 'B': KeyB, 'C': KeyC, 'D': KeyD, 'E': KeyE, 'F': KeyF, 'G': KeyG,
	'H': KeyH, 'I': KeyI, 'J': KeyJ, 'K': KeyK, 'L': KeyL, 'M': KeyM, 'N': KeyN,
	'O': KeyO, 'P': KeyP, 'Q': KeyQ, 'R': KeyR, 'S': KeyS, 'T': KeyT, 'U': KeyU,
	'V': KeyV, 'W': KeyW, 'X': KeyX, 'Y': KeyY, 'Z': KeyZ,

	'1': Key1, '2': Key2, '3': Key3, '4': Key4, '5': Key5,
	'6': Key6, '7': Key7, '8': Key8, '9': Key9, '0': Key0,
	'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
	'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,

	'-': KeyMinus, '=': KeyEqual, '[': KeyLeftBrace, ']': KeyRightBrace,
	'\\': KeyBackslash, ';': KeySemicolon, '\'': KeyApostrophe, '`': KeyGrave,
	',': KeyComma, '.': KeyPeriod, '/': KeySlash,
	'_': KeyMinus, '+': KeyEqual, '{': KeyLeftBrace, '}': KeyRightBrace,
	'|': KeyBackslash, ':': KeySemicolon, '"': KeyApostrophe, '~': KeyGrave,
	'<': KeyComma, '>': KeyPeriod, '?': KeySlash,

	' ': KeySpace, '\n': KeyEnter, '\r': KeyEnter, '\t': KeyTab,
	0x1b: KeyEscape, 0x7f: KeyBackspace, 0x08: KeyBackspace,
}

// ShiftChars lists the characters typed with shift held.
var ShiftChars = map[byte]bool{
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true,
	'H': true, 'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true,
	'O': true, 'P': true, 'Q': true, 'R': true, 'S': true, 'T': true, 'U': true,
	'V': true, 'W': true, 'X': true, 'Y': true, 'Z': true,
	'!': true, '@': true, '#': true, '$': true, '%': true,
	'^': true, '&': true, '*': true, '(': true, ')': true,
	'_': true, '+': true, '{': true, '}': true, '|': true,
	':': true, '"': true, '~': true, '<': true, '>': true, '?': true,
}

// CharToReport returns the raw report that types c, or false if c has no key.
func CharToReport(c byte) (RawReport, bool) {
	key, ok := CharToKey[c]
	if !ok {
		return RawReport{}, false
	}
	var r RawReport
	if ShiftChars[c] {
		r[0] = ModLeftShift
	}
	r[2] = key
	return r, true
}
