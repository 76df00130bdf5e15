package contextblock

import (
	"fmt"
	"strings"
)

// InsertMode selects where a block is placed in a document.
type InsertMode string

const (
	InsertTop     InsertMode = "top"
	InsertCursor  InsertMode = "cursor"
	InsertReplace InsertMode = "replace"
)

// ParseInsertMode validates a mode name.
func ParseInsertMode(s string) (InsertMode, error) {
	switch InsertMode(s) {
	case InsertTop, InsertCursor, InsertReplace:
		return InsertMode(s), nil
	default:
		return "", fmt.Errorf("unknown insert mode %q (want top, cursor or replace)", s)
	}
}

// Insert places block in document, first removing an existing block.
//
// An existing block starts at a line beginning with Header and extends over
// the following comment lines. cursor is a byte offset into document; it is
// shifted when the removed block precedes it. InsertReplace puts the new
// block where the old one was, or at the cursor when there was none.
func Insert(document, block string, mode InsertMode, cursor int) string {
	if !strings.HasSuffix(block, "\n") {
		block += "\n"
	}

	base, removedAt, removedLen := stripBlock(document)
	if removedAt >= 0 && removedAt < cursor {
		cursor = max(removedAt, cursor-removedLen)
	}
	cursor = min(max(cursor, 0), len(base))

	offset := cursor
	switch mode {
	case InsertTop:
		offset = 0
	case InsertReplace:
		if removedAt >= 0 {
			offset = removedAt
		}
	}
	return base[:offset] + block + base[offset:]
}

// stripBlock removes the first block from text. It returns the remaining
// text, the offset where the block started (-1 when none) and the number
// of bytes removed.
func stripBlock(text string) (string, int, int) {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(line, Header) {
			start = i
			break
		}
	}
	if start < 0 {
		return text, -1, 0
	}

	end := start
	for end+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[end+1]), "//") {
		end++
	}

	removedAt := 0
	for _, line := range lines[:start] {
		removedAt += len(line) + 1
	}

	kept := append(append([]string(nil), lines[:start]...), lines[end+1:]...)
	rest := strings.Join(kept, "\n")
	return rest, min(removedAt, len(rest)), len(text) - len(rest)
}
