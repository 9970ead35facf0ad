// Package chunk splits oversized replies into ordered, size-bounded segments
// for transmission. Chat platforms cap message length (commonly 2000
// characters), so long generated answers go out as several sends.
//
// The splitter prefers natural boundaries: paragraphs first, then sentences
// within an oversized paragraph, and only hard character splits when a single
// sentence exceeds the budget. Pieces are then reassembled greedily so chunks
// stay as full as possible without ever exceeding the limit, preserving the
// original order.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLen matches the message length limit of the platforms we target.
const DefaultMaxLen = 2000

// sentenceEnders terminate a sentence when followed by whitespace.
var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true}

// Split breaks text into chunks of at most maxLen runes each. Empty input
// yields no chunks. maxLen values < 1 fall back to DefaultMaxLen.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		maxLen = DefaultMaxLen
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var pieces []piece
	for pi, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxLen {
			pieces = append(pieces, piece{text: para, para: pi})
			continue
		}
		// Paragraph alone exceeds the budget: fall back to sentences.
		for _, sent := range splitSentences(para) {
			if utf8.RuneCountInString(sent) <= maxLen {
				pieces = append(pieces, piece{text: sent, para: pi})
				continue
			}
			// A single sentence still too long: hard split.
			for _, part := range hardSplit(sent, maxLen) {
				pieces = append(pieces, piece{text: part, para: pi})
			}
		}
	}

	return assemble(pieces, maxLen)
}

// piece is one boundary-split fragment tagged with the paragraph it came
// from, so reassembly can restore the right separator.
type piece struct {
	text string
	para int
}

// splitSentences cuts a paragraph at sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(para string) []string {
	var out []string
	runes := []rune(para)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !sentenceEnders[runes[i]] {
			continue
		}
		// Consume runs of enders ("?!", "...") as one boundary.
		j := i
		for j+1 < len(runes) && sentenceEnders[runes[j+1]] {
			j++
		}
		if j+1 == len(runes) || runes[j+1] == ' ' || runes[j+1] == '\n' || runes[j+1] == '\t' {
			s := strings.TrimSpace(string(runes[start : j+1]))
			if s != "" {
				out = append(out, s)
			}
			start = j + 1
		}
		i = j
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// hardSplit cuts s into maxLen-rune slices as a last resort.
func hardSplit(s string, maxLen int) []string {
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+maxLen-1)/maxLen)
	for start := 0; start < len(runes); start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// assemble greedily packs pieces into chunks so short fragments travel
// together, never exceeding maxLen. Pieces from different paragraphs rejoin
// with a blank line; fragments of one split paragraph rejoin with a space so
// the split does not invent paragraph breaks.
func assemble(pieces []piece, maxLen int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0
	lastPara := -1

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range pieces {
		pLen := utf8.RuneCountInString(p.text)
		sep := "\n\n"
		if p.para == lastPara {
			sep = " "
		}
		sepLen := len(sep)
		if curLen == 0 {
			sep = ""
			sepLen = 0
		}
		if curLen+sepLen+pLen > maxLen {
			flush()
			sep = ""
			sepLen = 0
		}
		cur.WriteString(sep)
		cur.WriteString(p.text)
		curLen += sepLen + pLen
		lastPara = p.para
	}
	flush()
	return chunks
}
