package chunker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clauses builds a synthetic numbered contract with n clauses of roughly
// clauseLen runes each.
func clauses(n, clauseLen int) string {
	var b strings.Builder
	body := strings.Repeat("甲方应当按照本合同约定履行义务。", clauseLen/15+1)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "第%d条 %s\n", i, body[:clauseLen*3])
	}
	return b.String()
}

func TestSplitShortText(t *testing.T) {
	t.Run("text at or under max yields one identical chunk", func(t *testing.T) {
		text := "第一条 本合同自双方签字之日起生效。"
		chunks := Split(text, DefaultMaxSize, DefaultOverlap)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, len([]rune(text)), chunks[0].End)
	})

	t.Run("empty text yields one empty chunk", func(t *testing.T) {
		chunks := Split("", 100, 10)
		require.Len(t, chunks, 1)
		assert.Equal(t, "", chunks[0].Text)
	})
}

func TestSplitByClauseMarkers(t *testing.T) {
	text := clauses(20, 150)
	chunks := Split(text, 1000, 100)
	require.Greater(t, len(chunks), 1)

	t.Run("no chunk grossly oversized", func(t *testing.T) {
		for i, c := range chunks {
			assert.LessOrEqual(t, c.End-c.Start, 2000, "chunk %d", i)
		}
	})

	t.Run("no gaps between adjacent chunks", func(t *testing.T) {
		for i := 1; i < len(chunks); i++ {
			assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End,
				"chunk %d starts after chunk %d ends", i, i-1)
		}
	})

	t.Run("full coverage of the source text", func(t *testing.T) {
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
	})

	t.Run("offsets address the original text", func(t *testing.T) {
		runes := []rune(text)
		for i, c := range chunks {
			assert.Equal(t, string(runes[c.Start:c.End]), c.Text, "chunk %d", i)
		}
	})
}

func TestSplitFixedFallback(t *testing.T) {
	// No clause markers at all: long run-on prose.
	text := strings.Repeat("本协议项下的全部义务均由双方共同承担。", 200)
	chunks := Split(text, 500, 50)
	require.Greater(t, len(chunks), 1)

	t.Run("every chunk within max size", func(t *testing.T) {
		for i, c := range chunks {
			assert.LessOrEqual(t, c.End-c.Start, 500, "chunk %d", i)
		}
	})

	t.Run("cuts land on sentence terminators", func(t *testing.T) {
		for _, c := range chunks[:len(chunks)-1] {
			runes := []rune(c.Text)
			assert.True(t, isSentenceEnd(runes[len(runes)-1]),
				"chunk does not end at a sentence terminator: %q", string(runes[len(runes)-10:]))
		}
	})

	t.Run("overlap carried between chunks", func(t *testing.T) {
		for i := 1; i < len(chunks); i++ {
			assert.Equal(t, chunks[i-1].End-50, chunks[i].Start)
		}
	})
}

func TestSplitLargeOverlapMakesProgress(t *testing.T) {
	// An overlap of more than half the window combined with a sentence
	// terminator just past the half-window boundary used to step the next
	// start back onto the current one, looping forever.
	t.Run("fixed fallback with overlap over half the window", func(t *testing.T) {
		text := strings.Repeat("甲", 50) + "。" + strings.Repeat("乙", 300)
		done := make(chan []Chunk, 1)
		go func() { done <- Split(text, 100, 60) }()

		var chunks []Chunk
		select {
		case chunks = <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("Split did not return")
		}

		require.NotEmpty(t, chunks)
		for i := 1; i < len(chunks); i++ {
			assert.Greater(t, chunks[i].Start, chunks[i-1].Start,
				"chunk %d does not advance past its predecessor", i)
		}
		assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
	})

	t.Run("marker split with overlap over half the window", func(t *testing.T) {
		var b strings.Builder
		for i := 1; i <= 8; i++ {
			fmt.Fprintf(&b, "第%d条 %s\n", i, strings.Repeat("丙", 80))
		}
		done := make(chan []Chunk, 1)
		go func() { done <- Split(b.String(), 100, 60) }()

		var chunks []Chunk
		select {
		case chunks = <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("Split did not return")
		}

		require.NotEmpty(t, chunks)
		for i := 1; i < len(chunks); i++ {
			assert.Greater(t, chunks[i].Start, chunks[i-1].Start,
				"chunk %d does not advance past its predecessor", i)
		}
	})
}

func TestWindows(t *testing.T) {
	t.Run("single chunk is the only window", func(t *testing.T) {
		ws := Windows([]Chunk{{Text: "abc", Start: 0, End: 3}}, 10)
		require.Len(t, ws, 1)
		assert.Equal(t, WindowOnly, ws[0].Position)
		assert.Equal(t, "abc", ws[0].Text)
	})

	t.Run("positions tagged first middle last", func(t *testing.T) {
		chunks := []Chunk{
			{Text: strings.Repeat("a", 20)},
			{Text: strings.Repeat("b", 20)},
			{Text: strings.Repeat("c", 20)},
		}
		ws := Windows(chunks, 5)
		require.Len(t, ws, 3)
		assert.Equal(t, WindowFirst, ws[0].Position)
		assert.Equal(t, WindowMiddle, ws[1].Position)
		assert.Equal(t, WindowLast, ws[2].Position)
	})

	t.Run("windows stitch in neighbor overlap", func(t *testing.T) {
		chunks := []Chunk{
			{Text: strings.Repeat("a", 20)},
			{Text: strings.Repeat("b", 20)},
		}
		ws := Windows(chunks, 5)
		assert.Equal(t, strings.Repeat("a", 20)+strings.Repeat("b", 5), ws[0].Text)
		assert.Equal(t, strings.Repeat("a", 5)+strings.Repeat("b", 20), ws[1].Text)
	})
}
