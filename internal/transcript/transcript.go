// Package transcript normalizes transcription service output into one
// canonical shape: full text, ordered timed segments, and an SRT rendering.
package transcript

import (
	"sort"
	"strings"

	"mediarepo/internal/language"
)

// Granularity values.
const (
	GranularitySegment = "segment"
	GranularityWord    = "word"
)

// Word is one aligned word.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// Segment is one timed span of speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the canonical transcription result.
type Transcript struct {
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	SRT         string    `json:"srt"`
	Language    string    `json:"language,omitempty"`
	Granularity string    `json:"granularity"`
	Placeholder bool      `json:"placeholder,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// Clone returns a copy that shares no segments or words with t.
func (t Transcript) Clone() Transcript {
	out := t
	if t.Segments != nil {
		out.Segments = make([]Segment, len(t.Segments))
		for i, seg := range t.Segments {
			if seg.Words != nil {
				seg.Words = append([]Word(nil), seg.Words...)
			}
			out.Segments[i] = seg
		}
	}
	return out
}

// Raw is the union of shapes a transcription service may return. Any subset of
// fields may be populated.
type Raw struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	SRT      string    `json:"srt"`
	Language string    `json:"language"`
}

// Normalize converts a raw response into a Transcript. Timed segments win over
// an SRT document, which wins over plain text. Plain text alone yields no
// segments and an empty SRT.
func Normalize(raw Raw) (Transcript, error) {
	out := Transcript{
		Language:    language.Normalize(raw.Language),
		Granularity: GranularitySegment,
	}

	segments := cleanSegments(raw.Segments)
	if len(segments) == 0 && strings.TrimSpace(raw.SRT) != "" {
		parsed, err := ParseSRT(raw.SRT)
		if err != nil {
			return Transcript{}, err
		}
		segments = cleanSegments(parsed)
	}

	out.Segments = segments
	out.Text = collapseSpace(raw.Text)
	if out.Text == "" && len(segments) > 0 {
		parts := make([]string, 0, len(segments))
		for _, seg := range segments {
			parts = append(parts, seg.Text)
		}
		out.Text = strings.Join(parts, " ")
	}
	if len(segments) > 0 {
		out.SRT = GenerateSRT(segments)
	}
	for _, seg := range segments {
		if len(seg.Words) > 0 {
			out.Granularity = GranularityWord
			break
		}
	}
	return out, nil
}

// Placeholder builds the stand-in result used when audio cannot be submitted.
func Placeholder(note string) Transcript {
	return Transcript{
		Granularity: GranularitySegment,
		Placeholder: true,
		Note:        strings.TrimSpace(note),
	}
}

// ApplyWords attaches aligned words to the segments they fall in and upgrades
// granularity. Words outside every segment are dropped.
func ApplyWords(t *Transcript, words []Word) {
	if t == nil || len(words) == 0 || len(t.Segments) == 0 {
		return
	}
	sorted := append([]Word(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	attached := 0
	for i := range t.Segments {
		t.Segments[i].Words = nil
	}
	for _, w := range sorted {
		w.Word = strings.TrimSpace(w.Word)
		if w.Word == "" {
			continue
		}
		mid := (w.Start + w.End) / 2
		for i := range t.Segments {
			seg := &t.Segments[i]
			if mid >= seg.Start && mid <= seg.End {
				seg.Words = append(seg.Words, w)
				attached++
				break
			}
		}
	}
	if attached > 0 {
		t.Granularity = GranularityWord
	}
}

func cleanSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, seg := range in {
		seg.Text = collapseSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func collapseSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
