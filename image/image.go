// Package image defines the serialized class image format: a CBOR
// document carrying every class, field, method, and handler table a
// program needs, plus its entry point. Images are produced ahead of
// time and linked into a live VM by the Linker.
package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the current image format version. Readers reject
// images with a different version.
const FormatVersion = 1

// ---------------------------------------------------------------------------
// Image records
// ---------------------------------------------------------------------------

// Image is the root document of a serialized program.
type Image struct {
	Version int           `cbor:"1,keyasint"`
	Name    string        `cbor:"2,keyasint"`
	Entry   EntryPoint    `cbor:"3,keyasint"`
	Classes []ClassRecord `cbor:"4,keyasint"`
}

// EntryPoint names the static method executed when the image runs.
type EntryPoint struct {
	Class  string `cbor:"1,keyasint"`
	Method string `cbor:"2,keyasint"`
}

// ClassRecord describes one class. Super refers to another class in
// the same image or a built-in by name; an empty Super means the
// built-in root class.
type ClassRecord struct {
	Name         string         `cbor:"1,keyasint"`
	Super        string         `cbor:"2,keyasint,omitempty"`
	Fields       []FieldRecord  `cbor:"3,keyasint,omitempty"`
	Statics      []FieldRecord  `cbor:"4,keyasint,omitempty"`
	Methods      []MethodRecord `cbor:"5,keyasint,omitempty"`
	StaticInit   *MethodRecord  `cbor:"6,keyasint,omitempty"`
	InstanceInit *MethodRecord  `cbor:"7,keyasint,omitempty"`
}

// FieldRecord describes one declared field. Kind uses the runtime's
// slot kind numbering.
type FieldRecord struct {
	Name string `cbor:"1,keyasint"`
	Kind uint8  `cbor:"2,keyasint"`
}

// MethodRecord describes one bytecode method.
type MethodRecord struct {
	Name     string          `cbor:"1,keyasint"`
	Static   bool            `cbor:"2,keyasint,omitempty"`
	Params   []uint8         `cbor:"3,keyasint,omitempty"`
	Locals   []uint8         `cbor:"4,keyasint,omitempty"`
	Code     []byte          `cbor:"5,keyasint"`
	Literals []LiteralRecord `cbor:"6,keyasint,omitempty"`
	Handlers []HandlerRecord `cbor:"7,keyasint,omitempty"`
	Lines    []LineRecord    `cbor:"8,keyasint,omitempty"`
}

// Literal kinds.
const (
	LitNil    uint8 = 0
	LitBool   uint8 = 1
	LitInt    uint8 = 2
	LitFloat  uint8 = 3
	LitString uint8 = 4
)

// LiteralRecord is one literal pool entry. Kind selects which of the
// payload fields is meaningful.
type LiteralRecord struct {
	Kind  uint8   `cbor:"1,keyasint"`
	Bool  bool    `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Str   string  `cbor:"5,keyasint,omitempty"`
}

// HandlerRecord is one exception handler table entry. Catch names the
// filter class; empty means catch-all. Finally entries ignore Catch.
type HandlerRecord struct {
	Start   int    `cbor:"1,keyasint"`
	End     int    `cbor:"2,keyasint"`
	Target  int    `cbor:"3,keyasint"`
	Catch   string `cbor:"4,keyasint,omitempty"`
	Finally bool   `cbor:"5,keyasint,omitempty"`
}

// LineRecord maps a bytecode offset to a source line.
type LineRecord struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Wire codec
// ---------------------------------------------------------------------------

// cborEncMode uses canonical options so the same image always encodes
// to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes an Image to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	if img.Version == 0 {
		img.Version = FormatVersion
	}
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an Image from CBOR bytes and checks the
// format version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != FormatVersion {
		return nil, fmt.Errorf("image: unsupported format version %d (want %d)", img.Version, FormatVersion)
	}
	return &img, nil
}
