// Package chunker splits long document text into overlapping windows so that
// oversized contracts can be reviewed piecewise without losing risks that
// span chunk boundaries. Splitting prefers numbered-clause markers and falls
// back to fixed-size slicing at sentence terminators.
package chunker

import (
	"regexp"

	"clauseguard/internal/logging"
)

// Default sizing. Offsets and sizes are in runes, not bytes, so CJK text is
// never cut mid-character.
const (
	DefaultMaxSize = 8000
	DefaultOverlap = 400
)

// Chunk is one slice of the source text. Start/End are rune offsets into the
// original text.
type Chunk struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// WindowPosition tags where a sliding window sits in the chunk sequence.
type WindowPosition string

const (
	WindowFirst  WindowPosition = "first"
	WindowMiddle WindowPosition = "middle"
	WindowLast   WindowPosition = "last"
	WindowOnly   WindowPosition = "only"
)

// Window is the review unit for multi-chunk analysis: the previous chunk's
// tail, the chunk itself, and the next chunk's head.
type Window struct {
	Text     string         `json:"text"`
	Index    int            `json:"index"`
	Position WindowPosition `json:"position"`
}

// clauseMarker matches numbered clause and section headings: Chinese
// statutory style (第三条), decimal numbering (3. / 3.1 / 3、), and
// English Article/Section headings.
var clauseMarker = regexp.MustCompile(`(?m)^\s*(第[零一二三四五六七八九十百千0-9]+[条款章]|[0-9]+(?:\.[0-9]+)*[.、)）]\s*|Article\s+[0-9]+|Section\s+[0-9]+|§\s*[0-9]+)`)

// isSentenceEnd reports whether r is an acceptable fallback cut point.
func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '.', '\n':
		return true
	}
	return false
}

// Split chunks text with explicit sizing. Text at or under maxSize yields
// exactly one chunk equal to the input. Chunking always produces something:
// validation problems are warnings, never failures.
func Split(text string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 20
	}

	runes := []rune(text)
	if len(runes) <= maxSize {
		return []Chunk{{Text: text, Start: 0, End: len(runes)}}
	}

	chunks := splitByMarkers(runes, maxSize, overlap)
	if chunks == nil {
		logging.ChunkerDebug("fewer than 2 clause markers, using fixed-size fallback")
		chunks = splitFixed(runes, maxSize, overlap)
	}

	validate(chunks, len(runes))
	logging.Chunker("split %d runes into %d chunks (max=%d overlap=%d)",
		len(runes), len(chunks), maxSize, overlap)
	return chunks
}

// splitByMarkers accumulates clause-delimited sections until a chunk would
// exceed maxSize, then cuts and backs up by overlap. Returns nil when the
// text has fewer than 2 markers.
func splitByMarkers(runes []rune, maxSize, overlap int) []Chunk {
	text := string(runes)
	locs := clauseMarker.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return nil
	}

	// Convert byte offsets to rune offsets.
	byteToRune := make(map[int]int, len(locs))
	ri := 0
	for bi := range text {
		byteToRune[bi] = ri
		ri++
	}
	byteToRune[len(text)] = len(runes)

	starts := make([]int, 0, len(locs)+1)
	if byteToRune[locs[0][0]] > 0 {
		starts = append(starts, 0) // preamble before the first marker
	}
	for _, loc := range locs {
		starts = append(starts, byteToRune[loc[0]])
	}

	var chunks []Chunk
	chunkStart := 0
	for i := 0; i < len(starts); i++ {
		sectionEnd := len(runes)
		if i+1 < len(starts) {
			sectionEnd = starts[i+1]
		}
		if sectionEnd-chunkStart > maxSize && starts[i] > chunkStart {
			// The next section would overflow: cut before it.
			cut := starts[i]
			chunks = append(chunks, Chunk{
				Text:  string(runes[chunkStart:cut]),
				Start: chunkStart,
				End:   cut,
			})
			next := cut - overlap
			if next <= chunkStart {
				// Overlap would step back into the chunk just
				// emitted; advance without overlap instead.
				next = cut
			}
			chunkStart = next
		}
	}
	if chunkStart < len(runes) {
		chunks = append(chunks, Chunk{
			Text:  string(runes[chunkStart:]),
			Start: chunkStart,
			End:   len(runes),
		})
	}

	// A single oversized section defeats marker splitting.
	if len(chunks) < 2 {
		return nil
	}
	for _, c := range chunks {
		if c.End-c.Start > maxSize*2 {
			return nil
		}
	}
	return chunks
}

// splitFixed slices every maxSize runes, preferring to end at the nearest
// sentence terminator within maxSize/2 of the hard cutoff.
func splitFixed(runes []rune, maxSize, overlap int) []Chunk {
	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + maxSize
		if end >= len(runes) {
			chunks = append(chunks, Chunk{
				Text:  string(runes[start:]),
				Start: start,
				End:   len(runes),
			})
			break
		}

		cut := end
		lowest := end - maxSize/2
		for i := end; i > lowest; i-- {
			if isSentenceEnd(runes[i-1]) {
				cut = i
				break
			}
		}
		chunks = append(chunks, Chunk{
			Text:  string(runes[start:cut]),
			Start: start,
			End:   cut,
		})
		next := cut - overlap
		if next <= start {
			// A large overlap with an early sentence cut would
			// re-cover the same region forever; force progress.
			next = cut
		}
		start = next
	}
	return chunks
}

// validate checks coverage bounds and gap freedom. Violations are logged as
// warnings; chunking never fails outright.
func validate(chunks []Chunk, originalLen int) {
	if originalLen == 0 {
		return
	}
	total := 0
	for _, c := range chunks {
		total += c.End - c.Start
	}
	ratio := float64(total) / float64(originalLen)
	if ratio < 0.8 || ratio > 1.5 {
		logging.ChunkerWarn("chunk coverage %.0f%% outside 80%%-150%% of original", ratio*100)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start > chunks[i-1].End {
			logging.ChunkerWarn("gap between chunk %d (end=%d) and chunk %d (start=%d)",
				i-1, chunks[i-1].End, i, chunks[i].Start)
		}
	}
}

// Windows builds sliding-window review units: previous tail + chunk + next
// head, each tagged with its position in the sequence.
func Windows(chunks []Chunk, overlap int) []Window {
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	windows := make([]Window, 0, len(chunks))
	for i, c := range chunks {
		text := c.Text
		if i > 0 {
			text = tail(chunks[i-1].Text, overlap) + text
		}
		if i < len(chunks)-1 {
			text = text + head(chunks[i+1].Text, overlap)
		}
		windows = append(windows, Window{
			Text:     text,
			Index:    i,
			Position: position(i, len(chunks)),
		})
	}
	return windows
}

func position(i, n int) WindowPosition {
	switch {
	case n == 1:
		return WindowOnly
	case i == 0:
		return WindowFirst
	case i == n-1:
		return WindowLast
	default:
		return WindowMiddle
	}
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
