package escpos

import (
	"bytes"
	"fmt"
)

// EncodingError reports input that cannot be encoded under a hard ESC/POS
// constraint. It is a caller bug, not a printer condition.
type EncodingError struct {
	Command string
	Reason  string
	Size    int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("escpos: cannot encode %s: %s (got %d bytes)", e.Command, e.Reason, e.Size)
}

// Document is a finished ESC/POS stream. It always starts with Init.
type Document struct {
	data     []byte
	cuttable bool
}

// Bytes returns a copy of the encoded stream.
func (d Document) Bytes() []byte {
	return bytes.Clone(d.data)
}

func (d Document) Len() int { return len(d.data) }

// Cuttable reports whether the document ends with a paper cut.
func (d Document) Cuttable() bool { return d.cuttable }

func (d Document) String() string { return string(d.data) }

// Builder is an append-only buffer for composing a Document. The first
// encoding failure is kept and returned by Build; later calls become no-ops.
type Builder struct {
	buf bytes.Buffer
	err error
	cut bool
}

// NewBuilder returns a builder that has already written Init.
func NewBuilder() *Builder {
	b := &Builder{}
	b.buf.Write(Init())
	return b
}

func (b *Builder) write(p []byte) *Builder {
	if b.err != nil || b.cut {
		return b
	}
	b.buf.Write(p)
	return b
}

func (b *Builder) Text(s string) *Builder { return b.write([]byte(s)) }

// Line writes s followed by a line feed.
func (b *Builder) Line(s string) *Builder { return b.Text(s).NewLine() }

func (b *Builder) NewLine() *Builder             { return b.write(NewLine()) }
func (b *Builder) Lines(n int) *Builder          { return b.write(Lines(n)) }
func (b *Builder) Align(a Alignment) *Builder    { return b.write(Align(a)) }
func (b *Builder) Style(s Style) *Builder        { return b.write(TextStyle(s)) }
func (b *Builder) Bold(on bool) *Builder         { return b.write(Bold(on)) }
func (b *Builder) Emphasis(on bool) *Builder     { return b.write(Emphasis(on)) }
func (b *Builder) DoubleStrike(on bool) *Builder { return b.write(DoubleStrike(on)) }
func (b *Builder) Dark(s string) *Builder        { return b.write(DarkText(s)) }
func (b *Builder) MediumDark(s string) *Builder  { return b.write(MediumDarkText(s)) }

func (b *Builder) Rule(char rune, width int) *Builder {
	return b.write(HorizontalLine(char, width))
}

// Raw appends pre-encoded command bytes.
func (b *Builder) Raw(p []byte) *Builder { return b.write(p) }

func (b *Builder) Barcode(data string) *Builder {
	if b.err != nil {
		return b
	}
	cmd, err := Barcode(data)
	if err != nil {
		b.err = err
		return b
	}
	return b.write(cmd)
}

// Cut appends the cut command and seals the document; nothing can follow it.
func (b *Builder) Cut(full bool) *Builder {
	b.write(Cut(full))
	if b.err == nil {
		b.cut = true
	}
	return b
}

func (b *Builder) Err() error { return b.err }

// Build returns the finished document, or the first encoding error.
func (b *Builder) Build() (Document, error) {
	if b.err != nil {
		return Document{}, b.err
	}
	return Document{data: bytes.Clone(b.buf.Bytes()), cuttable: b.cut}, nil
}
