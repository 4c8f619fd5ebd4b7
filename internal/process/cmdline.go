// Package process launches target programs onto an isolated desktop and
// controls their lifetime: waiting, cancellation on interrupt, exit code
// retrieval and forced termination.
package process

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// EncodeCommandLine builds the native command-line buffer for a launch.
// The target path and each argument are written as UTF-16 and terminated
// with a NUL, and one more NUL closes the whole buffer, so "prog" with
// ["a", "b"] becomes prog\0a\0b\0\0.
func EncodeCommandLine(targetPath string, targetArgs []string) ([]uint16, error) {
	segments := append([]string{targetPath}, targetArgs...)

	var buf []uint16
	for i, s := range segments {
		for _, r := range s {
			if r == 0 {
				return nil, fmt.Errorf("segment %d of command line contains NUL", i)
			}
		}
		buf = append(buf, utf16.Encode([]rune(s))...)
		buf = append(buf, 0)
	}
	return append(buf, 0), nil
}

// DecodeCommandLine splits a buffer produced by EncodeCommandLine back into
// its segments. The first segment is the target path.
func DecodeCommandLine(buf []uint16) ([]string, error) {
	if len(buf) < 2 || buf[len(buf)-1] != 0 || buf[len(buf)-2] != 0 {
		return nil, errors.New("command line is not double-terminated")
	}

	var segments []string
	start := 0
	for i, c := range buf[:len(buf)-1] {
		if c != 0 {
			continue
		}
		segments = append(segments, string(utf16.Decode(buf[start:i])))
		start = i + 1
	}
	return segments, nil
}
