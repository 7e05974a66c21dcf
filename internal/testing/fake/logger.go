package fake

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// WaitLog returns a logger and a function that blocks until the message is
// logged, or fails the test after the timeout.
func WaitLog(msg string, timeout time.Duration) (zerolog.Logger, func(t *testing.T)) {
	reader, writer := io.Pipe()
	found := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(reader)

		for scanner.Scan() {
			if strings.Contains(scanner.Text(), fmt.Sprintf(`"%s"`, msg)) {
				close(found)
				break
			}
		}

		// Keep draining so that the logger never blocks.
		io.Copy(io.Discard, reader)
	}()

	wait := func(t *testing.T) {
		defer writer.Close()

		select {
		case <-found:
		case <-time.After(timeout):
			t.Fatalf("log '%s' not found", msg)
		}
	}

	return zerolog.New(writer), wait
}

// CheckLog returns a logger and a check function. When called, the function
// verifies that the logger has seen the message.
func CheckLog(msg string) (zerolog.Logger, func(t *testing.T)) {
	buffer := &syncBuffer{}

	check := func(t *testing.T) {
		require.Contains(t, buffer.String(), fmt.Sprintf(`"%s"`, msg))
	}

	return zerolog.New(buffer), check
}

// syncBuffer is a buffer safe for concurrent writers.
type syncBuffer struct {
	sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()

	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.Lock()
	defer b.Unlock()

	return b.buffer.String()
}
