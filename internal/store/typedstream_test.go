package store

import "testing"

// archiveBlob builds a minimal blob in the shape summaryFromArchive reads:
// preamble, "NSString", 5 trailer bytes, length, payload.
func archiveBlob(text string, wide bool) []byte {
	blob := []byte{0x04, 0x0b}
	blob = append(blob, []byte("streamtyped")...)
	blob = append(blob, []byte("NSString")...)
	blob = append(blob, 0x01, 0x94, 0x84, 0x01, 0x2b)
	if wide {
		blob = append(blob, 0x81, byte(len(text)), byte(len(text)>>8))
	} else {
		blob = append(blob, byte(len(text)))
	}
	blob = append(blob, []byte(text)...)
	return blob
}

func TestSummaryFromArchive(t *testing.T) {
	if got := summaryFromArchive(archiveBlob("Hello there", false)); got != "Hello there" {
		t.Errorf("got %q, want %q", got, "Hello there")
	}
}

func TestSummaryFromArchiveWideLength(t *testing.T) {
	if got := summaryFromArchive(archiveBlob("wide payload", true)); got != "wide payload" {
		t.Errorf("got %q, want %q", got, "wide payload")
	}
}

func TestSummaryFromArchiveGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("no marker here"),
		[]byte("NSString"), // marker with nothing after
		append([]byte("NSString"), 0, 0, 0, 0, 0), // truncated trailer
	}
	for _, blob := range cases {
		if got := summaryFromArchive(blob); got != "" {
			t.Errorf("summaryFromArchive(%q) = %q, want empty", blob, got)
		}
	}
}

func TestSummaryFromArchiveTruncatedPayload(t *testing.T) {
	blob := archiveBlob("full text", false)
	if got := summaryFromArchive(blob[:len(blob)-4]); got != "" {
		t.Errorf("truncated payload produced %q, want empty", got)
	}
}
