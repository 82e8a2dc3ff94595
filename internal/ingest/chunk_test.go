package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestChunkExamples(t *testing.T) {
	cases := []struct {
		text string
		size int
		want []string
	}{
		{text: "", size: 3, want: nil},
		{text: "abc", size: 3, want: []string{"abc"}},
		{text: "abcdefg", size: 3, want: []string{"abc", "def", "g"}},
		{text: "żółw🐢x", size: 2, want: []string{"żó", "łw", "🐢x"}},
	}

	for _, tc := range cases {
		got, err := Chunk(tc.text, tc.size)
		if err != nil {
			t.Fatalf("Chunk(%q, %d): %v", tc.text, tc.size, err)
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Fatalf("Chunk(%q, %d) = %q, want %q", tc.text, tc.size, got, tc.want)
		}
	}
}

func TestChunkRejectsNonPositiveSize(t *testing.T) {
	if _, err := Chunk("abc", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestChunkRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		size := rapid.IntRange(1, 64).Draw(t, "size")

		chunks, err := Chunk(text, size)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		n := utf8.RuneCountInString(text)
		if want := (n + size - 1) / size; len(chunks) != want {
			t.Fatalf("expected %d chunks for %d runes, got %d", want, n, len(chunks))
		}

		if joined := strings.Join(chunks, ""); joined != text {
			t.Fatalf("round trip mismatch: %q != %q", joined, text)
		}

		for i, chunk := range chunks {
			runes := utf8.RuneCountInString(chunk)
			if i < len(chunks)-1 && runes != size {
				t.Fatalf("chunk %d has %d runes, want %d", i, runes, size)
			}
			if runes == 0 || runes > size {
				t.Fatalf("chunk %d has %d runes", i, runes)
			}
		}
	})
}
