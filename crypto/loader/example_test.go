package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

func ExampleLoader_LoadOrCreate() {
	dir, err := os.MkdirTemp(os.TempDir(), "example")
	if err != nil {
		panic("no folder: " + err.Error())
	}

	defer os.RemoveAll(dir)

	loader := NewFileLoader(filepath.Join(dir, "wallet", "private.key"))

	gen := GeneratorFunc(func() ([]byte, error) {
		return []byte("a marshaled private key"), nil
	})

	data, err := loader.LoadOrCreate(gen)
	if err != nil {
		panic("loading key failed: " + err.Error())
	}

	fmt.Println(string(data))

	// Output: a marshaled private key
}
