// Package metrics scores a transcription against its reference text.
// All distances count runes, so Cyrillic and other multi-byte scripts are
// measured per letter.
package metrics

import (
	"strings"
)

// Result holds character and word level accuracy for one transcription
type Result struct {
	CharacterSimilarity   float64 `yaml:"character_similarity"`
	WordSimilarity        float64 `yaml:"word_similarity"`
	WordAccuracy          float64 `yaml:"word_accuracy"`
	WordErrorRate         float64 `yaml:"word_error_rate"`
	CharacterErrorRate    float64 `yaml:"character_error_rate"`
	TotalWordsOriginal    int     `yaml:"total_words_original"`
	TotalWordsTranscribed int     `yaml:"total_words_transcribed"`
	CorrectWords          int     `yaml:"correct_words"`
	Substitutions         int     `yaml:"substitutions"`
	Deletions             int     `yaml:"deletions"`
	Insertions            int     `yaml:"insertions"`
}

// Summary averages a set of results
type Summary struct {
	Count                      int     `yaml:"count"`
	AverageCharacterSimilarity float64 `yaml:"average_character_similarity"`
	AverageWordSimilarity      float64 `yaml:"average_word_similarity"`
	AverageWordAccuracy        float64 `yaml:"average_word_accuracy"`
	AverageWordErrorRate       float64 `yaml:"average_word_error_rate"`
	AverageCharacterErrorRate  float64 `yaml:"average_character_error_rate"`
}

// Normalize lowercases text and collapses all whitespace, line breaks
// included, to single spaces
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Calculate compares a transcription with its reference after normalizing both
func Calculate(original, transcribed string) Result {
	origNorm := []rune(Normalize(original))
	transNorm := []rune(Normalize(transcribed))

	origWords := strings.Fields(string(origNorm))
	transWords := strings.Fields(string(transNorm))

	charDistance := distance(origNorm, transNorm)
	cer := 0.0
	if len(origNorm) > 0 {
		cer = float64(charDistance) / float64(len(origNorm))
	} else if len(transNorm) > 0 {
		cer = 1.0
	}

	correct, subs, dels, ins := alignWords(origWords, transWords)
	wer := 0.0
	if len(origWords) > 0 {
		wer = float64(subs+dels+ins) / float64(len(origWords))
	} else if len(transWords) > 0 {
		wer = 1.0
	}

	return Result{
		CharacterSimilarity:   similarity(origNorm, transNorm),
		WordSimilarity:        similarity(origWords, transWords),
		WordAccuracy:          1.0 - wer,
		WordErrorRate:         wer,
		CharacterErrorRate:    cer,
		TotalWordsOriginal:    len(origWords),
		TotalWordsTranscribed: len(transWords),
		CorrectWords:          correct,
		Substitutions:         subs,
		Deletions:             dels,
		Insertions:            ins,
	}
}

// Summarize averages results; an empty set yields a zero Summary
func Summarize(results []Result) Summary {
	s := Summary{Count: len(results)}
	if len(results) == 0 {
		return s
	}
	for _, r := range results {
		s.AverageCharacterSimilarity += r.CharacterSimilarity
		s.AverageWordSimilarity += r.WordSimilarity
		s.AverageWordAccuracy += r.WordAccuracy
		s.AverageWordErrorRate += r.WordErrorRate
		s.AverageCharacterErrorRate += r.CharacterErrorRate
	}
	n := float64(len(results))
	s.AverageCharacterSimilarity /= n
	s.AverageWordSimilarity /= n
	s.AverageWordAccuracy /= n
	s.AverageWordErrorRate /= n
	s.AverageCharacterErrorRate /= n
	return s
}

// distance is the Levenshtein distance between two sequences
func distance[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func similarity[T comparable](a, b []T) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance(a, b))/float64(maxLen)
}

// alignWords counts matches and edit operations on the minimal word alignment
func alignWords(orig, trans []string) (correct, substitutions, deletions, insertions int) {
	m, n := len(orig), len(trans)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if orig[i-1] == trans[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = 1 + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
			}
		}
	}

	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && orig[i-1] == trans[j-1]:
			correct++
			i--
			j--
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+1:
			substitutions++
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+1:
			deletions++
			i--
		default:
			insertions++
			j--
		}
	}
	return correct, substitutions, deletions, insertions
}
