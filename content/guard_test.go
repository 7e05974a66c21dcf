package content

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestValidate(t *testing.T) {
	err := Validate(Payload{Type: "image/png", Data: make([]byte, MaxSize)}, ImagePolicy)
	require.NoError(t, err)

	err = Validate(Payload{Type: "image/png", Data: make([]byte, 11*1024*1024)}, ImagePolicy)
	require.True(t, xerrors.Is(err, ErrTooLarge))

	err = Validate(Payload{Type: "text/plain", Data: []byte("a")}, ImagePolicy)
	require.True(t, xerrors.Is(err, ErrUnsupportedType))

	err = Validate(Payload{Type: "text/plain; charset=utf-8", Data: []byte("a")}, MediaPolicy)
	require.NoError(t, err)

	err = Validate(Payload{Type: "application/json", Data: []byte("{}")}, MediaPolicy)
	require.NoError(t, err)

	err = Validate(Payload{Type: "application/pdf", Data: []byte("a")}, MediaPolicy)
	require.True(t, xerrors.Is(err, ErrUnsupportedType))

	err = Validate(Payload{Type: "not a type", Data: []byte("a")}, MediaPolicy)
	require.True(t, xerrors.Is(err, ErrUnsupportedType))
}

func TestDetect(t *testing.T) {
	png := []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")

	require.Equal(t, "image/png", Detect("cat.png", nil))
	require.Equal(t, "image/png", Detect("cat", png))
	require.Equal(t, "text/plain", Detect("", []byte("hello world")))
	require.Equal(t, "application/json", Detect("chat.json", nil))
}
