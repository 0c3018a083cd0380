package diff

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Idempotence(t *testing.T) {
	content := "# Title\n\nSome paragraph.\n- item one\n- item two"

	r := Compute(content, content, 7, 7)

	assert.Empty(t, r.Lines)
	assert.Empty(t, r.Blocks)
	assert.Equal(t, 0, r.Summary.TotalChanges)
	assert.Equal(t, 0, r.Summary.PercentChanged)
}

func TestCompute_SingleModifiedLine(t *testing.T) {
	r := Compute("a\nb\nc", "a\nX\nc", 1, 2)

	require.Len(t, r.Lines, 1)
	assert.Equal(t, Modified, r.Lines[0].Type)
	assert.Equal(t, 2, r.Lines[0].LineNumber)
	assert.Equal(t, "X", r.Lines[0].Content)
	assert.Equal(t, "b", r.Lines[0].Previous)
	assert.Equal(t, int64(1), r.PreviousRevision)
	assert.Equal(t, int64(2), r.NewRevision)
}

func TestCompute_InsertionDoesNotShiftComparisons(t *testing.T) {
	// An index-aligned walk would report every line after the insertion
	// as modified; the LCS diff reports exactly one addition.
	prev := "one\ntwo\nthree\nfour"
	next := "one\ninserted\ntwo\nthree\nfour"

	r := Compute(prev, next, 1, 2)

	require.Len(t, r.Lines, 1)
	assert.Equal(t, Added, r.Lines[0].Type)
	assert.Equal(t, 2, r.Lines[0].LineNumber)
	assert.Equal(t, "inserted", r.Lines[0].Content)
}

func TestCompute_RemovedLines(t *testing.T) {
	r := Compute("keep\ndrop me\nkeep too", "keep\nkeep too", 1, 2)

	require.Len(t, r.Lines, 1)
	assert.Equal(t, Removed, r.Lines[0].Type)
	assert.Equal(t, 2, r.Lines[0].LineNumber)
	assert.Equal(t, "drop me", r.Lines[0].Content)
	assert.Equal(t, 1, r.Summary.LinesRemoved)
}

func TestCompute_UnevenReplacePairsModifiedThenAdded(t *testing.T) {
	r := Compute("a\nold\nz", "a\nnew1\nnew2\nz", 1, 2)

	var modified, added int
	for _, l := range r.Lines {
		switch l.Type {
		case Modified:
			modified++
		case Added:
			added++
		}
	}
	assert.Equal(t, 1, modified)
	assert.Equal(t, 1, added)
}

func TestCompute_BlankLineInsertion(t *testing.T) {
	r := Compute("a\nb", "a\n\nb", 1, 2)

	require.Len(t, r.Lines, 1)
	assert.Equal(t, Added, r.Lines[0].Type)
	assert.Equal(t, 2, r.Lines[0].LineNumber)
	assert.Equal(t, "", r.Lines[0].Content)
	assert.Equal(t, 1, r.Summary.TotalChanges)
	assert.NotEqual(t, "No changes detected.", r.Summary.Description)
}

func TestCompute_LineNumbersAfterBlankedLine(t *testing.T) {
	// Blanking a line must not shift the numbering of later changes.
	r := Compute("a\nb\nc\nd", "a\n\nc\nX", 1, 2)

	require.Len(t, r.Lines, 2)
	assert.Equal(t, Modified, r.Lines[0].Type)
	assert.Equal(t, 2, r.Lines[0].LineNumber)
	assert.Equal(t, "", r.Lines[0].Content)
	assert.Equal(t, "b", r.Lines[0].Previous)
	assert.Equal(t, Modified, r.Lines[1].Type)
	assert.Equal(t, 4, r.Lines[1].LineNumber)
	assert.Equal(t, "X", r.Lines[1].Content)
	assert.Equal(t, "d", r.Lines[1].Previous)
}

func TestCompute_SummaryPercent(t *testing.T) {
	// 4 lines -> 5 lines: |delta|=1, 1 added, 0 removed => 2/4 = 50%.
	prev := "a\nb\nc\nd"
	next := "a\nb\nc\nd\ne"

	r := Compute(prev, next, 1, 2)

	assert.Equal(t, 50, r.Summary.PercentChanged)
	assert.NotEmpty(t, r.Summary.Description)
}

func TestCompute_EmptyPrevious(t *testing.T) {
	r := Compute("", "hello\nworld", 0, 1)

	assert.Equal(t, 2, r.Summary.LinesAdded)
	// percentChanged is guarded when the previous content was empty.
	assert.Equal(t, 0, r.Summary.PercentChanged)
}

func TestSegmentBlocks_Types(t *testing.T) {
	content := "# Heading\n\nA paragraph line.\nStill the paragraph.\n\n- one\n- two\n\n```\ncode here\n```\n\na | b | c"

	blocks := segmentBlocks(content)

	require.Len(t, blocks, 5)
	assert.Equal(t, BlockHeading, blocks[0].blockType)
	assert.Equal(t, BlockParagraph, blocks[1].blockType)
	assert.Equal(t, BlockList, blocks[2].blockType)
	assert.Equal(t, BlockCode, blocks[3].blockType)
	assert.Equal(t, BlockTable, blocks[4].blockType)
}

func TestCompute_BlockDiff(t *testing.T) {
	prev := "# Title\n\nfirst paragraph"
	next := "# Title\n\nfirst paragraph\n\n- new\n- list"

	r := Compute(prev, next, 1, 2)

	require.Len(t, r.Blocks, 1)
	assert.Equal(t, Added, r.Blocks[0].Type)
	assert.Equal(t, BlockList, r.Blocks[0].BlockType)
	assert.Equal(t, 3, r.Blocks[0].Index)
	assert.Equal(t, 1, r.Summary.BlocksAdded)
	assert.Equal(t, 0, r.Summary.BlocksRemoved)
	assert.Equal(t, 0, r.Summary.BlocksModified)
	assert.Equal(t, 1, r.Summary.BlocksChanged)
}

func TestCompute_BlockModified(t *testing.T) {
	prev := "# Old Title\n\nbody"
	next := "# New Title\n\nbody"

	r := Compute(prev, next, 1, 2)

	require.Len(t, r.Blocks, 1)
	assert.Equal(t, Modified, r.Blocks[0].Type)
	assert.Equal(t, BlockHeading, r.Blocks[0].BlockType)
	assert.Equal(t, "# Old Title", r.Blocks[0].Previous)
	assert.Equal(t, "# New Title", r.Blocks[0].Content)
	assert.Equal(t, 1, r.Summary.BlocksModified)
	assert.Equal(t, 1, r.Summary.BlocksChanged)
}

func TestComputeWithTimeout_CompletesInTime(t *testing.T) {
	r, err := ComputeWithTimeout(context.Background(), "a\nb", "a\nc", 1, 2, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 1, r.Summary.TotalChanges)
}

func TestFormatForCard(t *testing.T) {
	r := Compute("a\nb\nc", "a\nX\nc", 1, 2)

	card := FormatForCard(r)

	assert.Contains(t, card, "Revision 1 -> 2")
	assert.Contains(t, card, "~ L2 b -> X")
}

func TestFormatForCard_TruncatesLongDiffs(t *testing.T) {
	var prev, next []string
	for i := 0; i < 40; i++ {
		prev = append(prev, "line")
		next = append(next, "changed")
	}

	r := Compute(strings.Join(prev, "\n"), strings.Join(next, "\n"), 1, 2)
	card := FormatForCard(r)

	assert.Contains(t, card, "more changed lines")
	assert.LessOrEqual(t, len(strings.Split(card, "\n")), maxCardLines+2)
}
