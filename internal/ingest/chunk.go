package ingest

import (
	"fmt"
	"unicode/utf8"
)

// Chunk splits text into consecutive slices of size runes. The last slice may
// be shorter. Joining the slices in order yields text unchanged.
func Chunk(text string, size int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if text == "" {
		return nil, nil
	}

	chunks := make([]string, 0, (utf8.RuneCountInString(text)+size-1)/size)
	start, runes := 0, 0
	for i := range text {
		if runes == size {
			chunks = append(chunks, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(chunks, text[start:]), nil
}
