package backup

// ImportMode determines how an import treats existing tags.
type ImportMode string

const (
	// ImportModeMerge adds the file's tags and assignments to what exists.
	ImportModeMerge ImportMode = "merge"

	// ImportModeReplace resets the document before importing.
	ImportModeReplace ImportMode = "replace"
)

// Valid returns true if the import mode is recognized. Empty means merge.
func (m ImportMode) Valid() bool {
	switch m {
	case ImportModeMerge, ImportModeReplace, "":
		return true
	default:
		return false
	}
}

// Limits bound what an import will process.
type Limits struct {
	Tags        int
	Assignments int
	Starred     int
}

// DefaultLimits are the bounds applied before any processing.
func DefaultLimits() Limits {
	return Limits{Tags: 1000, Assignments: 10000, Starred: 10000}
}

// ImportResult counts what an import did.
type ImportResult struct {
	TagsCreated int `json:"tagsCreated"`
	TagsSkipped int `json:"tagsSkipped"`
	Assignments int `json:"assignments"`
	Starred     int `json:"starred"`
}
