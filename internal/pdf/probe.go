// Package pdf wraps the document-level operations the pipeline needs:
// encryption probing, decryption, page counting and page-range splitting.
package pdf

import "bytes"

const (
	headerScanLen  = 2048
	trailerScanLen = 8192
)

var encryptMarker = []byte("/Encrypt")

// IsEncrypted reports whether the document looks password protected.
//
// This is a deliberate heuristic, not a container-format parse: it scans the
// header region and, for larger inputs, the trailer region for the /Encrypt
// marker. Unusual encryption layouts can produce false negatives; those
// surface later as a decrypt failure and route back to the password prompt.
func IsEncrypted(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	head := data
	if len(head) > headerScanLen {
		head = head[:headerScanLen]
	}
	if bytes.Contains(head, encryptMarker) {
		return true
	}

	if len(data) > trailerScanLen {
		tail := data[len(data)-trailerScanLen:]
		return bytes.Contains(tail, encryptMarker)
	}
	// Small documents were fully covered by the header scan only if they fit
	// in it; otherwise scan the remainder too.
	if len(data) > headerScanLen {
		return bytes.Contains(data[headerScanLen:], encryptMarker)
	}
	return false
}
