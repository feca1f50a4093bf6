package repository

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// decodeText converts raw file bytes to a string. A leading UTF-8 BOM is
// dropped and invalid sequences become U+FFFD. The second result reports
// whether any replacement happened.
func decodeText(data []byte) (string, bool) {
	fellBack := !utf8.Valid(data)

	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		// The UTF-8 decoder replaces rather than fails; keep a lossy copy
		// regardless so decoding never aborts a file.
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), true
	}
	return normalizeNewlines(string(decoded)), fellBack
}

// normalizeNewlines maps \r\n and lone \r to \n.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// splitLines splits normalized content into lines without their
// terminators. A final terminator does not start another line, so
// "a\nb\n" and "a\nb" both have two lines and "" has none.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// buildLineRecords produces one record per line with trimmed content and
// the immediate neighbours as context.
func buildLineRecords(path string, lines []string) []LineRecord {
	trimmed := make([]string, len(lines))
	for i, l := range lines {
		trimmed[i] = strings.TrimSpace(l)
	}

	records := make([]LineRecord, len(lines))
	for i := range lines {
		n := i + 1
		rec := LineRecord{Path: path, LineNumber: n, Content: trimmed[i]}
		if i > 0 {
			rec.Previous = &LineContext{LineNumber: n - 1, Content: trimmed[i-1]}
		}
		if i < len(lines)-1 {
			rec.Next = &LineContext{LineNumber: n + 1, Content: trimmed[i+1]}
		}
		records[i] = rec
	}
	return records
}
