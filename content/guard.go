package content

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/elnormous/contenttype"
	"golang.org/x/xerrors"
)

// MaxSize is the maximum size in bytes of an uploaded payload.
const MaxSize = 10 * 1024 * 1024

var (
	// ErrTooLarge is returned when a payload exceeds the maximum size.
	ErrTooLarge = xerrors.New("file size must be less than 10 MiB")

	// ErrUnsupportedType is returned when the media type of a payload is not
	// accepted.
	ErrUnsupportedType = xerrors.New("unsupported media type")
)

// Policy is the set of rules a payload must follow to be uploaded.
type Policy struct {
	MaxSize int
	Allowed []contenttype.MediaType
}

// ImagePolicy only accepts images.
var ImagePolicy = Policy{
	MaxSize: MaxSize,
	Allowed: []contenttype.MediaType{
		contenttype.NewMediaType("image/*"),
	},
}

// MediaPolicy accepts images, text and JSON documents such as chat logs.
var MediaPolicy = Policy{
	MaxSize: MaxSize,
	Allowed: []contenttype.MediaType{
		contenttype.NewMediaType("image/*"),
		contenttype.NewMediaType("text/*"),
		contenttype.NewMediaType("application/json"),
	},
}

// Validate returns an error if the payload does not follow the policy.
func Validate(p Payload, policy Policy) error {
	if len(p.Data) > policy.MaxSize {
		return xerrors.Errorf("payload of %d bytes over %d: %w",
			len(p.Data), policy.MaxSize, ErrTooLarge)
	}

	mt, err := contenttype.ParseMediaType(p.Type)
	if err != nil {
		return xerrors.Errorf("invalid media type '%s' (%v): %w", p.Type, err, ErrUnsupportedType)
	}

	for _, allowed := range policy.Allowed {
		if matches(allowed, mt) {
			return nil
		}
	}

	return xerrors.Errorf("media type '%s' refused: %w", p.Type, ErrUnsupportedType)
}

func matches(allowed, mt contenttype.MediaType) bool {
	if allowed.Type != "*" && allowed.Type != mt.Type {
		return false
	}

	return allowed.Subtype == "*" || allowed.Subtype == mt.Subtype
}

// Detect returns the media type of the file, first from the extension of its
// name, then by sniffing the data.
func Detect(name string, data []byte) string {
	ext := filepath.Ext(name)
	if ext != "" {
		typ := mime.TypeByExtension(ext)
		if typ != "" {
			mt, err := contenttype.ParseMediaType(typ)
			if err == nil {
				return mt.Type + "/" + mt.Subtype
			}
		}
	}

	mt, err := contenttype.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}

	return mt.Type + "/" + mt.Subtype
}
