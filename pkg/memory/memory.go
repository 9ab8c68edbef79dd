// Package memory provides helpers for scrubbing sensitive byte buffers.
package memory

import "runtime"

// Wipe overwrites b with zeros. The KeepAlive stops the compiler from
// eliding the writes when b is dead afterwards.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// WipeAll wipes every buffer. Nil slices are skipped.
func WipeAll(bufs ...[]byte) {
	for _, b := range bufs {
		if b != nil {
			Wipe(b)
		}
	}
}
