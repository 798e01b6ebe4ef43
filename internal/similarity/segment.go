package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment splits text into paragraphs on blank lines and each paragraph into
// sentences. Empty paragraphs and sentences are dropped.
func Segment(text string) []string {
	var segments []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		segments = append(segments, sentences(para)...)
	}
	return segments
}

// sentences cuts after '.', '!' or '?' when followed by whitespace or the end
// of the paragraph, so decimals like 3.14 stay intact.
func sentences(para string) []string {
	var out []string
	start := 0
	for i, r := range para {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end < len(para) {
			next, _ := utf8.DecodeRuneInString(para[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		if s := strings.TrimSpace(para[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
