package pipeline

import "strings"

// Assemble returns the text of lines 0..n-1 in order.
// Lines missing from results come back as empty strings.
func Assemble(results ResultMap, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = results[i]
	}
	return out
}

// Join concatenates line texts with newline separators
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}
