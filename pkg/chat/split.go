// Package chat prepares replies for chat platforms that cap message
// length. Splitting prefers natural boundaries so each chunk reads as
// a complete thought.
package chat

import "strings"

// DefaultLimit is the per-message character cap on the target platform.
const DefaultLimit = 2000

// Split breaks text into chunks no longer than limit characters. It
// breaks at paragraph boundaries first, then sentences, then words,
// and hard-cuts only when a single word exceeds the limit.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}
	add := func(piece, sep string) {
		if buf.Len() > 0 && buf.Len()+len(sep)+len(piece) > limit {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= limit {
			add(para, "\n\n")
			continue
		}
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= limit {
				add(sentence, " ")
				continue
			}
			for _, piece := range splitWords(sentence, limit) {
				add(piece, " ")
			}
		}
	}
	flush()
	return chunks
}

// splitSentences breaks a paragraph after terminal punctuation
// followed by a space, keeping the punctuation with the sentence.
func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p)-1; i++ {
		switch p[i] {
		case '.', '!', '?':
			if p[i+1] == ' ' {
				if s := strings.TrimSpace(p[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 2
			}
		}
	}
	if start < len(p) {
		if s := strings.TrimSpace(p[start:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitWords packs words into chunks of at most limit characters,
// hard-cutting any single word longer than the limit.
func splitWords(s string, limit int) []string {
	var out []string
	var buf strings.Builder

	for _, w := range strings.Fields(s) {
		for len(w) > limit {
			if buf.Len() > 0 {
				out = append(out, buf.String())
				buf.Reset()
			}
			out = append(out, w[:limit])
			w = w[limit:]
		}
		if w == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(w) > limit {
			out = append(out, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w)
	}

	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}
