package transcript

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GenerateSRT renders segments as an SRT document. Timestamps are rounded to
// the nearest millisecond.
func GenerateSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// ParseSRT reads cues from an SRT document. Cue numbers are optional and
// multi-line cue text is joined with spaces.
func ParseSRT(content string) ([]Segment, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimPrefix(normalized, "\ufeff")
	blocks := strings.Split(strings.TrimSpace(normalized), "\n\n")

	var segments []Segment
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
			continue
		}
		timingIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timingIdx = i
				break
			}
		}
		if timingIdx < 0 {
			return nil, fmt.Errorf("srt cue %q: missing timing line", strings.TrimSpace(lines[0]))
		}
		parts := strings.Split(lines[timingIdx], "-->")
		if len(parts) != 2 {
			return nil, fmt.Errorf("srt cue: invalid timing line %q", lines[timingIdx])
		}
		start, err := parseSRTTimestamp(parts[0])
		if err != nil {
			return nil, err
		}
		// Position hints such as "X1:..." may follow the end timestamp.
		endFields := strings.Fields(parts[1])
		if len(endFields) == 0 {
			return nil, fmt.Errorf("srt cue: missing end timestamp in %q", lines[timingIdx])
		}
		end, err := parseSRTTimestamp(endFields[0])
		if err != nil {
			return nil, err
		}
		text := make([]string, 0, len(lines)-timingIdx-1)
		for _, line := range lines[timingIdx+1:] {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				text = append(text, trimmed)
			}
		}
		segments = append(segments, Segment{Start: start, End: end, Text: strings.Join(text, " ")})
	}
	return segments, nil
}

func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	totalMillis %= 3_600_000
	minutes := totalMillis / 60_000
	totalMillis %= 60_000
	secs := totalMillis / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

func parseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// SRT uses a comma for milliseconds; tolerate a period.
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
