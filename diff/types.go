package diff

// ChangeKind classifies a single line or block difference.
type ChangeKind string

const (
	Added     ChangeKind = "added"
	Removed   ChangeKind = "removed"
	Modified  ChangeKind = "modified"
	Unchanged ChangeKind = "unchanged"
)

// BlockType is the coarse structural category of a content block.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockList      BlockType = "list"
	BlockCode      BlockType = "code"
	BlockTable     BlockType = "table"
)

// LineDiff is one changed line. LineNumber is 1-based: in the new content
// for added/modified lines, in the previous content for removed lines.
// Previous carries the before-text for modified and removed lines.
type LineDiff struct {
	Type       ChangeKind `json:"type"`
	LineNumber int        `json:"line_number"`
	Content    string     `json:"content"`
	Previous   string     `json:"previous,omitempty"`
}

// BlockDiff is one changed block at paragraph/heading/list/code/table
// granularity. Index is the 1-based block position, numbered like lines.
type BlockDiff struct {
	Type      ChangeKind `json:"type"`
	BlockType BlockType  `json:"block_type"`
	Index     int        `json:"index"`
	Content   string     `json:"content"`
	Previous  string     `json:"previous,omitempty"`
}

// Summary aggregates a diff into per-type counts at both granularities
// and a human-readable sentence.
type Summary struct {
	LinesAdded     int    `json:"lines_added"`
	LinesRemoved   int    `json:"lines_removed"`
	LinesModified  int    `json:"lines_modified"`
	BlocksAdded    int    `json:"blocks_added"`
	BlocksRemoved  int    `json:"blocks_removed"`
	BlocksModified int    `json:"blocks_modified"`
	BlocksChanged  int    `json:"blocks_changed"`
	TotalChanges   int    `json:"total_changes"`
	PercentChanged int    `json:"percent_changed"`
	Description    string `json:"description"`
}

// Result is the full comparison of two content revisions. It is derived
// data: computed on demand, never persisted.
type Result struct {
	PreviousRevision int64       `json:"previous_revision"`
	NewRevision      int64       `json:"new_revision"`
	Lines            []LineDiff  `json:"lines"`
	Blocks           []BlockDiff `json:"blocks"`
	Summary          Summary     `json:"summary"`
}
