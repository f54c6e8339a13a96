// Package escpos builds raw ESC/POS byte streams for thermal receipt printers.
// Everything here is pure: no I/O, no clock, no randomness.
package escpos

import "bytes"

const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = '\n'
)

// Darkness defaults applied by Init. Thermal heads fade with age and supply
// voltage; maxing density and heat keeps tickets readable.
const (
	DefaultDensity      = 15
	DefaultHeatTime     = 120
	DefaultHeatInterval = 50
)

// Barcode constants (Code 128).
const (
	barcodeCode128 = 73
	barcodeHeight  = 60
	barcodeWidth   = 3
	barcodeHRI     = 2
	maxBarcodeLen  = 255
)

type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

type Style byte

const (
	StyleNormal       Style = 0x00
	StyleDoubleHeight Style = 0x10
	StyleDoubleWidth  Style = 0x20
	StyleLarge        Style = 0x30
)

// ================= PRIMITIVES =================

// Init resets the printer, applies the darkness settings and selects the
// character set.
func Init() []byte {
	cmd := []byte{ESC, '@'}
	cmd = append(cmd, SetDensity(DefaultDensity)...)
	cmd = append(cmd, SetHeatTime(DefaultHeatTime)...)
	cmd = append(cmd, SetHeatInterval(DefaultHeatInterval)...)
	cmd = append(cmd, CharacterSet()...)
	return cmd
}

// Reset is the bare ESC @ without darkness tuning.
func Reset() []byte {
	return []byte{ESC, '@'}
}

// SetDensity sets print density, clamped to 0-15.
func SetDensity(level int) []byte {
	return []byte{GS, '(', 'K', 0x02, 0x00, 0x30, clamp(level, 0, 15)}
}

// SetHeatTime sets heating time, clamped to 80-255.
func SetHeatTime(heat int) []byte {
	return []byte{ESC, '7', clamp(heat, 80, 255), 40, 200}
}

// SetHeatInterval sets heating interval, clamped to 0-255.
func SetHeatInterval(interval int) []byte {
	return []byte{ESC, '8', clamp(interval, 0, 255), 2}
}

func CharacterSet() []byte {
	return []byte{ESC, 'R', 0x00}
}

func Align(a Alignment) []byte {
	if a > AlignRight {
		a = AlignLeft
	}
	return []byte{ESC, 'a', byte(a)}
}

func TextStyle(s Style) []byte {
	switch s {
	case StyleNormal, StyleDoubleHeight, StyleDoubleWidth, StyleLarge:
	default:
		s = StyleNormal
	}
	return []byte{ESC, '!', byte(s)}
}

func Bold(on bool) []byte {
	return []byte{ESC, 'E', flag(on)}
}

func Emphasis(on bool) []byte {
	return []byte{ESC, 'G', flag(on)}
}

func DoubleStrike(on bool) []byte {
	return []byte{ESC, 'g', flag(on)}
}

func NewLine() []byte {
	return []byte{LF}
}

// Lines returns n line feeds; n <= 0 yields nothing.
func Lines(n int) []byte {
	if n <= 0 {
		return nil
	}
	return bytes.Repeat([]byte{LF}, n)
}

// Cut emits a full (GS V 1) or partial (GS V 0) cut.
func Cut(full bool) []byte {
	return []byte{GS, 'V', flag(full)}
}

// Barcode encodes data as Code 128 with the HRI text printed below. The length
// prefix is a single byte, so data longer than 255 bytes is rejected.
func Barcode(data string) ([]byte, error) {
	if len(data) > maxBarcodeLen {
		return nil, &EncodingError{Command: "barcode", Reason: "payload exceeds 255 bytes", Size: len(data)}
	}
	cmd := []byte{
		GS, 'h', barcodeHeight,
		GS, 'w', barcodeWidth,
		GS, 'H', barcodeHRI,
		GS, 'k', barcodeCode128, byte(len(data)),
	}
	return append(cmd, data...), nil
}

// ================= DARKNESS =================

// MaxDarkness turns on bold, emphasis and double-strike.
func MaxDarkness() []byte {
	return concat(Bold(true), Emphasis(true), DoubleStrike(true))
}

// MediumDarkness turns on bold and emphasis.
func MediumDarkness() []byte {
	return concat(Bold(true), Emphasis(true))
}

// NormalDarkness switches every darkness mode off and returns to normal text,
// whatever was active before.
func NormalDarkness() []byte {
	return concat(Bold(false), Emphasis(false), DoubleStrike(false), TextStyle(StyleNormal))
}

func DarkText(s string) []byte {
	return concat(MaxDarkness(), []byte(s), NormalDarkness())
}

func MediumDarkText(s string) []byte {
	return concat(MediumDarkness(), []byte(s), NormalDarkness())
}

// HorizontalLine repeats char width times in maximum darkness.
func HorizontalLine(char rune, width int) []byte {
	if width < 0 {
		width = 0
	}
	return DarkText(repeatRune(char, width))
}

func clamp(v, lo, hi int) byte {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return byte(v)
}

func flag(on bool) byte {
	if on {
		return 0x01
	}
	return 0x00
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func repeatRune(r rune, n int) string {
	if n == 0 {
		return ""
	}
	return string(bytes.Repeat([]byte(string(r)), n))
}
