package llm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	fourGramRepeatThreshold     = 8
	longSubstringMinLen         = 30
	longSubstringRepeatThresh   = 5
	unterminatedJSONLengthCheck = 3000
)

// DetectDegeneration scans a completed model output for the three
// degenerate-decode signatures: a repeated 4-gram, a repeated long
// substring, or a long output that never closes its outermost JSON
// object. Any match means the output should be discarded and retried
// with adjusted sampling, not parsed.
func DetectDegeneration(output string) bool {
	normalized := norm.NFC.String(output)
	if hasRepeatedFourGram(normalized) {
		return true
	}
	if hasRepeatedLongSubstring(normalized) {
		return true
	}
	if isUnterminatedJSON(normalized) {
		return true
	}
	return false
}

func hasRepeatedFourGram(s string) bool {
	fields := strings.Fields(s)
	if len(fields) < 4 {
		return false
	}
	counts := make(map[string]int)
	for i := 0; i+4 <= len(fields); i++ {
		gram := strings.Join(fields[i:i+4], " ")
		counts[gram]++
		if counts[gram] > fourGramRepeatThreshold {
			return true
		}
	}
	return false
}

// hasRepeatedLongSubstring checks whether any substring of at least
// longSubstringMinLen runes repeats more than longSubstringRepeatThresh
// times, by sliding a longSubstringMinLen-rune window one rune at a time
// and counting identical windows.
func hasRepeatedLongSubstring(s string) bool {
	runes := []rune(s)
	n := len(runes)
	if n < longSubstringMinLen*2 {
		return false
	}
	counts := make(map[string]int)
	for i := 0; i+longSubstringMinLen <= n; i++ {
		window := string(runes[i : i+longSubstringMinLen])
		counts[window]++
		if counts[window] > longSubstringRepeatThresh {
			return true
		}
	}
	return false
}

func isUnterminatedJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) <= unterminatedJSONLengthCheck {
		return false
	}
	return !strings.HasSuffix(trimmed, "}")
}
