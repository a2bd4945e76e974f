package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keeply/backup-agent/internal/walker"
)

func TestClassifyNew(t *testing.T) {
	m := walker.FileMeta{FullPath: "/data/a.txt", SizeBytes: 5, ModifiedAt: 100}

	d := Classify(m, nil)

	assert.Equal(t, StatusNew, d.Status)
	assert.True(t, d.NeedsHash)
}

func TestClassifyModifiedOnSizeChange(t *testing.T) {
	m := walker.FileMeta{FullPath: "/data/a.txt", SizeBytes: 7, ModifiedAt: 100}
	prev := &Prior{SizeBytes: 5, ModifiedAt: 100, KnownPath: "/data/a.txt"}

	d := Classify(m, prev)

	assert.Equal(t, StatusModified, d.Status)
	assert.True(t, d.NeedsHash)
}

func TestClassifyModifiedOnMtimeChange(t *testing.T) {
	m := walker.FileMeta{FullPath: "/data/a.txt", SizeBytes: 5, ModifiedAt: 200}
	prev := &Prior{SizeBytes: 5, ModifiedAt: 100, KnownPath: "/data/a.txt"}

	d := Classify(m, prev)

	assert.Equal(t, StatusModified, d.Status)
}

func TestClassifyMovedReusesHash(t *testing.T) {
	m := walker.FileMeta{FullPath: "/data/sub/a.txt", SizeBytes: 5, ModifiedAt: 100}
	prev := &Prior{
		SizeBytes: 5, ModifiedAt: 100, KnownPath: "/data/a.txt",
		ContentAlgo: "sha256", ContentHash: "deadbeef",
	}

	d := Classify(m, prev)

	assert.Equal(t, StatusMoved, d.Status)
	assert.False(t, d.NeedsHash)
	assert.Equal(t, "deadbeef", d.ContentHash)
}

func TestClassifyMoveComparesPathCaseInsensitively(t *testing.T) {
	m := walker.FileMeta{FullPath: "/DATA/A.txt", SizeBytes: 5, ModifiedAt: 100}
	prev := &Prior{SizeBytes: 5, ModifiedAt: 100, KnownPath: "/data/a.txt"}

	d := Classify(m, prev)

	assert.Equal(t, StatusUnchanged, d.Status)
}

func TestClassifyUnchanged(t *testing.T) {
	m := walker.FileMeta{FullPath: "/data/a.txt", SizeBytes: 5, ModifiedAt: 100}
	prev := &Prior{
		SizeBytes: 5, ModifiedAt: 100, KnownPath: "/data/a.txt",
		ContentAlgo: "sha256", ContentHash: "deadbeef",
	}

	d := Classify(m, prev)

	assert.Equal(t, StatusUnchanged, d.Status)
	assert.False(t, d.NeedsHash)
	assert.Equal(t, "deadbeef", d.ContentHash)
}
