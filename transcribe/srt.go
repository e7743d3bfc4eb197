package transcribe

import (
	"fmt"
	"os"
	"strings"

	"github.com/soundline-io/capstan/types"
)

// RenderSRT renders timestamped segments as SubRip subtitle text.
// Segments with empty text are skipped; cue numbering stays contiguous.
func RenderSRT(segments []types.Segment) string {
	var b strings.Builder
	cue := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cue++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			cue, srtTimestamp(seg.Start), srtTimestamp(seg.End), text)
	}
	return b.String()
}

// WriteSRT renders segments to path. Returns (false, nil) without
// touching the filesystem when there are no renderable segments.
func WriteSRT(path string, segments []types.Segment) (bool, error) {
	body := RenderSRT(segments)
	if body == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return false, fmt.Errorf("writing subtitles: %w", err)
	}
	return true, nil
}

// srtTimestamp formats seconds as the SubRip HH:MM:SS,mmm form.
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	millis := int64(sec*1000 + 0.5)
	h := millis / 3_600_000
	m := millis / 60_000 % 60
	s := millis / 1000 % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
