// Package classifier implements the NEW/MODIFIED/MOVED/UNCHANGED
// decision (spec §4.3) against a HybridIndex snapshot of prior
// file_state rows for one scan root.
package classifier

import (
	"strings"

	"github.com/keeply/backup-agent/internal/walker"
)

// Status values a Classifier can produce.
const (
	StatusNew       = "NEW"
	StatusModified  = "MODIFIED"
	StatusMoved     = "MOVED"
	StatusUnchanged = "UNCHANGED"
)

// Prior is the subset of a prior file_state row the classifier needs.
type Prior struct {
	SizeBytes   int64
	ModifiedAt  int64
	KnownPath   string
	ContentAlgo string
	ContentHash string
}

// Decision is the classifier's verdict for one FileMeta.
type Decision struct {
	Status      string
	NeedsHash   bool
	ContentAlgo string // reused from Prior when NeedsHash is false
	ContentHash string
}

// Classify applies the spec §4.3 decision table. prev is nil for a file
// never seen before under this root.
func Classify(m walker.FileMeta, prev *Prior) Decision {
	if prev == nil {
		return Decision{Status: StatusNew, NeedsHash: true}
	}

	if prev.SizeBytes != m.SizeBytes || prev.ModifiedAt != m.ModifiedAt {
		return Decision{Status: StatusModified, NeedsHash: true}
	}

	if !strings.EqualFold(prev.KnownPath, m.FullPath) {
		return Decision{
			Status:      StatusMoved,
			NeedsHash:   false,
			ContentAlgo: prev.ContentAlgo,
			ContentHash: prev.ContentHash,
		}
	}

	return Decision{
		Status:      StatusUnchanged,
		NeedsHash:   false,
		ContentAlgo: prev.ContentAlgo,
		ContentHash: prev.ContentHash,
	}
}
