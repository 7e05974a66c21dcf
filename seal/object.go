package seal

import (
	"bytes"
	"encoding/binary"
	"io"

	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// Version is the current version of the encrypted object format.
const Version = 0

const maxFieldSize = 64 * 1024 * 1024

// EncryptedObject is the ciphertext of some content with everything needed to
// recover its symmetric key from the key servers.
//
// The share of the key server at position i is masked with a key only
// computable with its user secret key for the identity.
type EncryptedObject struct {
	Version    uint8
	PackageID  ledger.ID
	ID         []byte
	Services   []ledger.ID
	Threshold  uint8
	U          []byte
	Shares     [][]byte
	Nonce      []byte
	Ciphertext []byte
}

// ParseEncryptedObject returns the encrypted object of the data.
func ParseEncryptedObject(data []byte) (EncryptedObject, error) {
	var obj EncryptedObject

	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return obj, xerrors.Errorf("failed to read version: %v", err)
	}

	if version != Version {
		return obj, xerrors.Errorf("unsupported version %d", version)
	}

	obj.Version = version

	_, err = io.ReadFull(r, obj.PackageID[:])
	if err != nil {
		return obj, xerrors.Errorf("failed to read package: %v", err)
	}

	obj.ID, err = readField(r)
	if err != nil {
		return obj, xerrors.Errorf("failed to read id: %v", err)
	}

	obj.Threshold, err = r.ReadByte()
	if err != nil {
		return obj, xerrors.Errorf("failed to read threshold: %v", err)
	}

	num, err := r.ReadByte()
	if err != nil {
		return obj, xerrors.Errorf("failed to read services: %v", err)
	}

	if num == 0 || obj.Threshold == 0 || obj.Threshold > num {
		return obj, xerrors.Errorf("invalid threshold %d of %d", obj.Threshold, num)
	}

	obj.Services = make([]ledger.ID, num)
	for i := range obj.Services {
		_, err = io.ReadFull(r, obj.Services[i][:])
		if err != nil {
			return obj, xerrors.Errorf("failed to read service %d: %v", i, err)
		}
	}

	obj.U, err = readField(r)
	if err != nil {
		return obj, xerrors.Errorf("failed to read encapsulation: %v", err)
	}

	obj.Shares = make([][]byte, num)
	for i := range obj.Shares {
		obj.Shares[i], err = readField(r)
		if err != nil {
			return obj, xerrors.Errorf("failed to read share %d: %v", i, err)
		}
	}

	obj.Nonce, err = readField(r)
	if err != nil {
		return obj, xerrors.Errorf("failed to read nonce: %v", err)
	}

	obj.Ciphertext, err = readField(r)
	if err != nil {
		return obj, xerrors.Errorf("failed to read ciphertext: %v", err)
	}

	if r.Len() != 0 {
		return obj, xerrors.Errorf("%d trailing bytes", r.Len())
	}

	return obj, nil
}

// FullID returns the identity of the object, which is the package followed
// by the identifier.
func (obj EncryptedObject) FullID() []byte {
	return fullID(obj.PackageID, obj.ID)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (obj EncryptedObject) MarshalBinary() ([]byte, error) {
	buffer := new(bytes.Buffer)

	err := obj.writeHeader(buffer)
	if err != nil {
		return nil, err
	}

	writeField(buffer, obj.Ciphertext)

	return buffer.Bytes(), nil
}

// header returns the encoding of the object without the ciphertext, which is
// authenticated by the symmetric encryption.
func (obj EncryptedObject) header() ([]byte, error) {
	buffer := new(bytes.Buffer)

	err := obj.writeHeader(buffer)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

func (obj EncryptedObject) writeHeader(buffer *bytes.Buffer) error {
	if len(obj.Services) == 0 || len(obj.Services) > 255 {
		return xerrors.Errorf("invalid number of services %d", len(obj.Services))
	}

	if len(obj.Shares) != len(obj.Services) {
		return xerrors.Errorf("%d shares for %d services", len(obj.Shares), len(obj.Services))
	}

	buffer.WriteByte(obj.Version)
	buffer.Write(obj.PackageID[:])
	writeField(buffer, obj.ID)
	buffer.WriteByte(obj.Threshold)
	buffer.WriteByte(byte(len(obj.Services)))

	for _, service := range obj.Services {
		buffer.Write(service[:])
	}

	writeField(buffer, obj.U)

	for _, share := range obj.Shares {
		writeField(buffer, share)
	}

	writeField(buffer, obj.Nonce)

	return nil
}

func writeField(buffer *bytes.Buffer, field []byte) {
	var size [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(size[:], uint64(len(field)))

	buffer.Write(size[:n])
	buffer.Write(field)
}

func readField(r *bytes.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to read length: %v", err)
	}

	if size > maxFieldSize || size > uint64(r.Len()) {
		return nil, xerrors.Errorf("invalid length %d", size)
	}

	field := make([]byte, size)

	_, err = io.ReadFull(r, field)
	if err != nil {
		return nil, xerrors.Errorf("failed to read field: %v", err)
	}

	return field, nil
}

func fullID(pkg ledger.ID, id []byte) []byte {
	res := make([]byte, 0, ledger.IDSize+len(id))
	res = append(res, pkg[:]...)

	return append(res, id...)
}
