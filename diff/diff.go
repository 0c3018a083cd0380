// Package diff compares two document content revisions line by line and
// block by block. Line comparison is a true longest-common-subsequence
// diff (via diffmatchpatch in line mode), so an inserted line shifts
// nothing: unrelated lines are never misreported as modified.
package diff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrTimeout is returned by ComputeWithTimeout when the comparison does
// not finish inside the caller's deadline.
var ErrTimeout = errors.New("diff computation timed out")

// Compute diffs two content strings. Deterministic, CPU-bound, no I/O;
// callers on latency-sensitive paths should use ComputeWithTimeout.
func Compute(prevContent, newContent string, prevRevision, newRevision int64) Result {
	lines := diffLines(prevContent, newContent)
	blocks := diffBlocks(prevContent, newContent)

	result := Result{
		PreviousRevision: prevRevision,
		NewRevision:      newRevision,
		Lines:            lines,
		Blocks:           blocks,
	}
	result.Summary = summarize(result, prevContent, newContent)
	return result
}

// ComputeWithTimeout races Compute against ctx and the given timeout.
// On timeout the computation goroutine is abandoned; it finishes on its
// own and its result is discarded.
func ComputeWithTimeout(ctx context.Context, prevContent, newContent string, prevRevision, newRevision int64, timeout time.Duration) (Result, error) {
	done := make(chan Result, 1)
	go func() {
		done <- Compute(prevContent, newContent, prevRevision, newRevision)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
		return Result{}, ErrTimeout
	}
}

func diffLines(prevContent, newContent string) []LineDiff {
	if prevContent == newContent {
		return nil
	}

	dmp := diffmatchpatch.New()
	prevChars, newChars, lineIndex := dmp.DiffLinesToChars(prevContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(prevChars, newChars, false), lineIndex)

	var out []LineDiff
	prevNo, newNo := 1, 1

	for i := 0; i < len(diffs); {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			n := len(splitLines(d.Text))
			prevNo += n
			newNo += n
			i++

		case diffmatchpatch.DiffInsert:
			for j, line := range splitLines(d.Text) {
				out = append(out, LineDiff{Type: Added, LineNumber: newNo + j, Content: line})
			}
			newNo += len(splitLines(d.Text))
			i++

		case diffmatchpatch.DiffDelete:
			removed := splitLines(d.Text)
			var inserted []string
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted = splitLines(diffs[i+1].Text)
				i += 2
			} else {
				i++
			}

			// A delete run adjacent to an insert run is an in-place edit:
			// pair the overlapping lines as modifications.
			paired := len(removed)
			if len(inserted) < paired {
				paired = len(inserted)
			}
			for j := 0; j < paired; j++ {
				out = append(out, LineDiff{
					Type:       Modified,
					LineNumber: newNo + j,
					Content:    inserted[j],
					Previous:   removed[j],
				})
			}
			for j := paired; j < len(removed); j++ {
				out = append(out, LineDiff{
					Type:       Removed,
					LineNumber: prevNo + j,
					Content:    removed[j],
				})
			}
			for j := paired; j < len(inserted); j++ {
				out = append(out, LineDiff{Type: Added, LineNumber: newNo + j, Content: inserted[j]})
			}
			prevNo += len(removed)
			newNo += len(inserted)
		}
	}
	return out
}

// splitLines breaks diff segment text into lines. A trailing separator
// closes the last line rather than opening an empty one, so "a\n" is one
// line and a segment of exactly "\n" is one empty line, not nothing.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	if strings.HasSuffix(text, "\n") {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func summarize(r Result, prevContent, newContent string) Summary {
	var added, removed, modified int
	for _, l := range r.Lines {
		switch l.Type {
		case Added:
			added++
		case Removed:
			removed++
		case Modified:
			modified++
		}
	}

	var blocksAdded, blocksRemoved, blocksModified int
	for _, bl := range r.Blocks {
		switch bl.Type {
		case Added:
			blocksAdded++
		case Removed:
			blocksRemoved++
		case Modified:
			blocksModified++
		}
	}

	prevLen := countLines(prevContent)
	newLen := countLines(newContent)

	percent := 0
	if prevLen > 0 {
		delta := newLen - prevLen
		if delta < 0 {
			delta = -delta
		}
		percent = int(math.Round(float64(delta+added+removed) / float64(prevLen) * 100))
	}

	s := Summary{
		LinesAdded:     added,
		LinesRemoved:   removed,
		LinesModified:  modified,
		BlocksAdded:    blocksAdded,
		BlocksRemoved:  blocksRemoved,
		BlocksModified: blocksModified,
		BlocksChanged:  len(r.Blocks),
		TotalChanges:   added + removed + modified,
		PercentChanged: percent,
	}
	s.Description = describe(s)
	return s
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return len(splitLines(content))
}

func describe(s Summary) string {
	if s.TotalChanges == 0 {
		return "No changes detected."
	}
	parts := []string{}
	if s.LinesAdded > 0 {
		parts = append(parts, fmt.Sprintf("%d added", s.LinesAdded))
	}
	if s.LinesRemoved > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", s.LinesRemoved))
	}
	if s.LinesModified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", s.LinesModified))
	}
	return fmt.Sprintf("%s lines (%d%% of document changed)", strings.Join(parts, ", "), s.PercentChanged)
}
