package ledger

import (
	"encoding/hex"
	"strings"

	"golang.org/x/xerrors"
)

// IDSize is the size in bytes of an object identifier or an address.
const IDSize = 32

// ClockID is the identifier of the shared clock object.
var ClockID = ID{31: 0x6}

// ID is the identifier of an object or an account address.
type ID [IDSize]byte

// ParseID decodes a 0x-prefixed hexadecimal identifier. Short forms like 0x6
// are left-padded with zeros.
func ParseID(text string) (ID, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "0x")
	if text == "" {
		return ID{}, xerrors.New("empty identifier")
	}

	if len(text) > IDSize*2 {
		return ID{}, xerrors.Errorf("identifier too long: %d > %d", len(text), IDSize*2)
	}

	if len(text)%2 == 1 {
		text = "0" + text
	}

	buf, err := hex.DecodeString(text)
	if err != nil {
		return ID{}, xerrors.Errorf("failed to decode hex: %v", err)
	}

	var id ID
	copy(id[IDSize-len(buf):], buf)

	return id, nil
}

// MustParseID is like ParseID but panics on malformed input.
func MustParseID(text string) ID {
	id, err := ParseID(text)
	if err != nil {
		panic(err)
	}

	return id
}

// IDFromBytes returns the identifier stored in the buffer.
func IDFromBytes(buf []byte) (ID, error) {
	if len(buf) != IDSize {
		return ID{}, xerrors.Errorf("invalid identifier length: %d != %d", len(buf), IDSize)
	}

	var id ID
	copy(id[:], buf)

	return id, nil
}

// Bytes returns a copy of the identifier bytes.
func (id ID) Bytes() []byte {
	return append([]byte{}, id[:]...)
}

// IsZero returns true if the identifier is not set.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the 0x-prefixed hexadecimal form.
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}

	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}
