package node

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlagSet_String(t *testing.T) {
	fset := make(FlagSet)
	fset["a"] = "something"
	fset["b"] = 20

	require.Equal(t, "something", fset.String("a"))
	require.Equal(t, "", fset.String("b"))
	require.Equal(t, "something", fset.Path("a"))
	require.Equal(t, "", fset.Path("b"))
}

func TestFlagSet_StringSlice(t *testing.T) {
	fset := make(FlagSet)
	fset["a"] = []interface{}{"1", 2, "3"}
	fset["b"] = 123
	fset["c"] = []string{"x"}

	require.Equal(t, []string{"1", "3"}, fset.StringSlice("a"))
	require.Nil(t, fset.StringSlice("b"))
	require.Equal(t, []string{"x"}, fset.StringSlice("c"))
}

func TestFlagSet_Numbers(t *testing.T) {
	fset := make(FlagSet)
	fset["a"] = 20
	fset["b"] = "oops"
	fset["c"] = 30.0
	fset["d"] = 30.1
	fset["e"] = time.Second

	require.Equal(t, 20, fset.Int("a"))
	require.Equal(t, 0, fset.Int("b"))
	require.Equal(t, 30, fset.Int("c"))
	require.Equal(t, 0, fset.Int("d"))

	require.Equal(t, time.Second, fset.Duration("e"))
	require.Equal(t, time.Duration(30), fset.Duration("c"))
	require.Equal(t, time.Duration(0), fset.Duration("a"))
}

func TestFlagSet_Bool(t *testing.T) {
	fset := make(FlagSet)
	fset["a"] = true
	fset["b"] = "oops"
	fset["c"] = false

	require.True(t, fset.Bool("a"))
	require.False(t, fset.Bool("b"))
	require.False(t, fset.Bool("c"))
}

func TestFlagSet_JSON(t *testing.T) {
	fset := FlagSet{
		"keyservers": 3,
		"wait":       2 * time.Second,
		"address":    []string{"0x1", "0x2"},
		"force":      true,
	}

	data, err := json.Marshal(fset)
	require.NoError(t, err)

	decoded := make(FlagSet)
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, 3, decoded.Int("keyservers"))
	require.Equal(t, 2*time.Second, decoded.Duration("wait"))
	require.Equal(t, []string{"0x1", "0x2"}, decoded.StringSlice("address"))
	require.True(t, decoded.Bool("force"))
}
