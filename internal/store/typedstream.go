package store

import (
	"bytes"
	"unicode/utf8"
)

var nsStringMarker = []byte("NSString")

// summaryFromArchive pulls the string payload out of an archived
// attributed-body blob. The archive format is undocumented; this reads the
// length-prefixed bytes that follow the first NSString class record, which
// holds for every blob the current Messages schema writes. Returns "" when
// the blob doesn't look like an archive.
func summaryFromArchive(blob []byte) string {
	idx := bytes.Index(blob, nsStringMarker)
	if idx == -1 {
		return ""
	}
	// Skip the class record trailer: 0x01 0x94 0x84 0x01 0x2b ("+"), then a
	// one-byte length, or 0x81 followed by a little-endian uint16 length.
	i := idx + len(nsStringMarker) + 5
	if i >= len(blob) {
		return ""
	}
	var length int
	switch blob[i] {
	case 0x81:
		if i+3 > len(blob) {
			return ""
		}
		length = int(blob[i+1]) | int(blob[i+2])<<8
		i += 3
	default:
		length = int(blob[i])
		i++
	}
	if length <= 0 || i+length > len(blob) {
		return ""
	}
	s := blob[i : i+length]
	if !utf8.Valid(s) {
		return ""
	}
	return string(s)
}
