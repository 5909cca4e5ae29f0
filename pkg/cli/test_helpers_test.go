package cli

import (
	"bytes"
	"os"
	"testing"
)

// captureStdout swaps os.Stdout for a pipe and returns a restore
// function that hands back everything written. A goroutine drains the
// pipe so large outputs cannot fill the buffer and deadlock.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}
