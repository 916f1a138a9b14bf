package protocol

import (
	"bytes"
	"errors"
)

// Fixed field widths of the message bodies
const (
	UsernameSize = 32
	ContentSize  = 1024
	FilenameSize = 256
)

var ErrShortBody = errors.New("message body shorter than its fixed layout")

// PutFixedString copies s into dst, NUL padding the rest. At most len(dst)-1
// bytes of s are copied so the field always carries a terminator.
func PutFixedString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	copy(dst[:len(dst)-1], s)
}

// ReadFixedString returns the bytes of field up to the first NUL, or the
// whole field when it has no terminator.
func ReadFixedString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
