package diff

import "strings"

// block is one structural unit of a document: consecutive lines of the
// same type merged together, with code fences kept as a single block.
type block struct {
	blockType BlockType
	content   string
}

// diffBlocks segments both contents into blocks and diffs the block
// sequences with the same LCS + pairing strategy used for lines.
func diffBlocks(prevContent, newContent string) []BlockDiff {
	if prevContent == newContent {
		return nil
	}

	prevBlocks := segmentBlocks(prevContent)
	newBlocks := segmentBlocks(newContent)

	var out []BlockDiff
	prevIdx, newIdx := 1, 1

	for _, op := range lcsWalk(prevBlocks, newBlocks) {
		switch op.kind {
		case opEqual:
			prevIdx += len(op.removed)
			newIdx += len(op.removed)

		case opReplace:
			paired := len(op.removed)
			if len(op.inserted) < paired {
				paired = len(op.inserted)
			}
			for j := 0; j < paired; j++ {
				out = append(out, BlockDiff{
					Type:      Modified,
					BlockType: op.inserted[j].blockType,
					Index:     newIdx + j,
					Content:   op.inserted[j].content,
					Previous:  op.removed[j].content,
				})
			}
			for j := paired; j < len(op.removed); j++ {
				out = append(out, BlockDiff{
					Type:      Removed,
					BlockType: op.removed[j].blockType,
					Index:     prevIdx + j,
					Content:   op.removed[j].content,
				})
			}
			for j := paired; j < len(op.inserted); j++ {
				out = append(out, BlockDiff{
					Type:      Added,
					BlockType: op.inserted[j].blockType,
					Index:     newIdx + j,
					Content:   op.inserted[j].content,
				})
			}
			prevIdx += len(op.removed)
			newIdx += len(op.inserted)
		}
	}
	return out
}

// segmentBlocks groups lines into typed blocks. Classification is a
// leading-character heuristic: '#' heading, '-'/'*' list, fenced code,
// '|' anywhere means table, everything else paragraph. Consecutive lines
// of the same type merge; blank lines end the current block.
func segmentBlocks(content string) []block {
	if content == "" {
		return nil
	}

	var blocks []block
	var current *block
	inCode := false

	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				current.content += "\n" + line
				flush()
				inCode = false
			} else {
				flush()
				current = &block{blockType: BlockCode, content: line}
				inCode = true
			}
			continue
		}
		if inCode {
			current.content += "\n" + line
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		bt := classifyLine(trimmed)
		if current != nil && current.blockType == bt {
			current.content += "\n" + line
			continue
		}
		flush()
		current = &block{blockType: bt, content: line}
	}
	flush()
	return blocks
}

func classifyLine(trimmed string) BlockType {
	switch {
	case strings.HasPrefix(trimmed, "#"):
		return BlockHeading
	case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
		trimmed == "-" || trimmed == "*":
		return BlockList
	case strings.Contains(trimmed, "|"):
		return BlockTable
	default:
		return BlockParagraph
	}
}

type walkOpKind int

const (
	opEqual walkOpKind = iota
	opReplace
)

// walkOp is one run of the LCS alignment: either a shared run (removed
// holds the common blocks) or a replace run with adjacent removals and
// insertions.
type walkOp struct {
	kind     walkOpKind
	removed  []block
	inserted []block
}

// lcsWalk aligns two block sequences on their longest common subsequence
// and emits runs of equal and replaced blocks.
func lcsWalk(prev, next []block) []walkOp {
	n, m := len(prev), len(next)

	// Standard LCS table; block sequences are short (tens, not thousands).
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if blocksEqual(prev[i], next[j]) {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	var ops []walkOp
	var pendingRemoved, pendingInserted []block

	flushPending := func() {
		if len(pendingRemoved) > 0 || len(pendingInserted) > 0 {
			ops = append(ops, walkOp{kind: opReplace, removed: pendingRemoved, inserted: pendingInserted})
			pendingRemoved, pendingInserted = nil, nil
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		if blocksEqual(prev[i], next[j]) {
			flushPending()
			if len(ops) > 0 && ops[len(ops)-1].kind == opEqual {
				ops[len(ops)-1].removed = append(ops[len(ops)-1].removed, prev[i])
			} else {
				ops = append(ops, walkOp{kind: opEqual, removed: []block{prev[i]}})
			}
			i++
			j++
		} else if table[i+1][j] >= table[i][j+1] {
			pendingRemoved = append(pendingRemoved, prev[i])
			i++
		} else {
			pendingInserted = append(pendingInserted, next[j])
			j++
		}
	}
	for ; i < n; i++ {
		pendingRemoved = append(pendingRemoved, prev[i])
	}
	for ; j < m; j++ {
		pendingInserted = append(pendingInserted, next[j])
	}
	flushPending()
	return ops
}

func blocksEqual(a, b block) bool {
	return a.blockType == b.blockType && a.content == b.content
}
