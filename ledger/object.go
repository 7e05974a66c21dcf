package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Object is a ledger object as returned by the read accessors. The fields are
// kept in their JSON form and decoded by the module that knows their layout.
type Object struct {
	ID      ID              `json:"id"`
	Type    string          `json:"type"`
	Owner   ID              `json:"owner"`
	Shared  bool            `json:"shared"`
	Version uint64          `json:"version"`
	Fields  json.RawMessage `json:"fields"`
}

// DecodeFields decodes the fields of the object into the value.
func (o Object) DecodeFields(v interface{}) error {
	if len(o.Fields) == 0 {
		return xerrors.Errorf("object %v has no fields", o.ID)
	}

	err := json.Unmarshal(o.Fields, v)
	if err != nil {
		return xerrors.Errorf("failed to decode fields of %v: %v", o.ID, err)
	}

	return nil
}

// IsOwnedBy returns true if the object is owned by the address.
func (o Object) IsOwnedBy(addr ID) bool {
	return !o.Shared && o.Owner == addr
}

// DynamicField is an entry attached to a parent object. The name is the value
// the field has been created with.
type DynamicField struct {
	Parent ID     `json:"parent"`
	Name   string `json:"name"`
}

// StructType returns the fully qualified type of a module struct.
func StructType(pkg ID, module, name string) string {
	return fmt.Sprintf("%s::%s::%s", pkg, module, name)
}

// Target returns the fully qualified name of a module function.
func Target(pkg ID, module, function string) string {
	return fmt.Sprintf("%s::%s::%s", pkg, module, function)
}

// ParseTarget splits a fully qualified function name into its package, module
// and function parts.
func ParseTarget(target string) (ID, string, string, error) {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		return ID{}, "", "", xerrors.Errorf("malformed target '%s'", target)
	}

	pkg, err := ParseID(parts[0])
	if err != nil {
		return ID{}, "", "", xerrors.Errorf("malformed package in '%s': %v", target, err)
	}

	return pkg, parts[1], parts[2], nil
}

// HasTypeSuffix returns true if the type ends with the "module::Name" suffix.
func HasTypeSuffix(structType, suffix string) bool {
	return strings.HasSuffix(structType, "::"+suffix)
}
