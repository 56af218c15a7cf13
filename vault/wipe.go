package vault

import (
	"crypto/subtle"
	"runtime"
)

// wipe overwrites sensitive bytes before the slice is released. The
// ConstantTimeCompare call and KeepAlive discourage the compiler from
// eliding the zeroing.
func wipe(data []byte) {
	if len(data) == 0 {
		return
	}
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, zeros)
	copy(data, zeros)
	runtime.KeepAlive(data)
}
