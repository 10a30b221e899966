// Package goroutineid extracts the calling goroutine's runtime id by
// parsing it off the goroutine's own stack trace header. Used by stress to
// label worker goroutines for its deadlock-dump filtering.
package goroutineid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current parses "goroutine N [running]:" off the head of this goroutine's
// own stack trace. It never fails in practice (the runtime always prints
// this header), but returns ok=false rather than panicking if the format
// ever changes underneath us.
func Current() (id uint64, ok bool) {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0, false
	}
	rest := buf[len(prefix):]
	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(rest[:sp]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
