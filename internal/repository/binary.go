package repository

import (
	"bytes"
	"io"
	"os"
)

// binarySniffLen is how many leading bytes are inspected for a null byte.
const binarySniffLen = 1024

// IsBinaryFile reports whether the first 1024 bytes of the file contain a
// null byte. Files shorter than that are inspected whole.
func IsBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return IsBinaryContent(buf[:n]), nil
}

// IsBinaryContent applies the same null-byte test to an in-memory prefix.
func IsBinaryContent(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) != -1
}
