package walker

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// ExcludeFilter matches relative paths against a set of gitignore-style
// glob patterns (spec §4.2: "directories are matched against excludes as
// relative paths; a match causes the whole subtree to be skipped").
type ExcludeFilter struct {
	matcher *ignore.GitIgnore
}

// NewExcludeFilter compiles globs into a matcher. An empty pattern list
// is valid and matches nothing.
func NewExcludeFilter(globs []string) (*ExcludeFilter, error) {
	if len(globs) == 0 {
		return &ExcludeFilter{}, nil
	}

	matcher := ignore.CompileIgnoreLines(globs...)

	return &ExcludeFilter{matcher: matcher}, nil
}

// MatchDir reports whether relPath (a directory, relative to the scan
// root, using forward slashes) should be pruned entirely.
func (f *ExcludeFilter) MatchDir(relPath string) bool {
	return f.match(relPath)
}

// MatchFile reports whether relPath (a regular file, relative to the
// scan root) should be excluded from the scan.
func (f *ExcludeFilter) MatchFile(relPath string) bool {
	return f.match(relPath)
}

func (f *ExcludeFilter) match(relPath string) bool {
	if f.matcher == nil {
		return false
	}

	return f.matcher.MatchesPath(relPath)
}
