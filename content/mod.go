// Package content defines the envelope in which a payload is encrypted. The
// envelope keeps the media type next to the bytes so that the reader knows
// how to render the content once decrypted, the blob store being agnostic of
// it.
//
// The envelope is the JSON object {"type": "<media type>", "content": [...]}
// where the content is an array of byte values.
//
// Documentation Last Review: 30.09.2026
//
package content

import (
	"bytes"
	"encoding/json"
	"strconv"

	"golang.org/x/xerrors"
)

// DefaultType is the media type given to a payload that does not parse as an
// envelope.
const DefaultType = "application/json"

// Payload is a piece of content with its media type.
type Payload struct {
	Type string
	Data []byte
}

type envelope struct {
	Type    string    `json:"type"`
	Content byteArray `json:"content"`
}

// Serialize returns the envelope of the payload.
func Serialize(p Payload) ([]byte, error) {
	if p.Type == "" {
		return nil, xerrors.New("missing media type")
	}

	data, err := json.Marshal(envelope{Type: p.Type, Content: p.Data})
	if err != nil {
		return nil, xerrors.Errorf("failed to encode envelope: %v", err)
	}

	return data, nil
}

// Parse returns the payload of the envelope. It never fails: data that is not
// an envelope is returned as is with the default media type.
func Parse(data []byte) Payload {
	var env envelope

	err := json.Unmarshal(data, &env)
	if err != nil || env.Type == "" || env.Content == nil {
		return Payload{Type: DefaultType, Data: data}
	}

	return Payload{Type: env.Type, Data: env.Content}
}

// byteArray is a slice of bytes encoded as a JSON array of numbers.
type byteArray []byte

// MarshalJSON implements json.Marshaler.
func (b byteArray) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, len(b)*4+2))
	buffer.WriteByte('[')

	for i, v := range b {
		if i > 0 {
			buffer.WriteByte(',')
		}

		buffer.WriteString(strconv.Itoa(int(v)))
	}

	buffer.WriteByte(']')

	return buffer.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Every number must be a byte.
func (b *byteArray) UnmarshalJSON(data []byte) error {
	var values []int

	err := json.Unmarshal(data, &values)
	if err != nil {
		return err
	}

	res := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return xerrors.Errorf("value %d at %d is not a byte", v, i)
		}

		res[i] = byte(v)
	}

	*b = res

	return nil
}
