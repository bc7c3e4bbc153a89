package ocr

import (
	"bufio"
	_ "embed"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"unicode"
)

//go:embed words_en.txt
var embeddedWords string

// Dictionary is a case-insensitive set of valid words
type Dictionary struct {
	words map[string]struct{}
}

// NewDictionary builds a dictionary from a word list
func NewDictionary(words []string) *Dictionary {
	d := &Dictionary{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			d.words[strings.ToLower(w)] = struct{}{}
		}
	}
	return d
}

// DefaultDictionary returns the built-in list of common English words
func DefaultDictionary() *Dictionary {
	return NewDictionary(strings.Fields(embeddedWords))
}

// LoadDictionary reads a one-word-per-line file such as /usr/share/dict/words
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary %s: %w", path, err)
	}

	return NewDictionary(words), nil
}

// Contains reports whether word is in the dictionary, ignoring case
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.words[strings.ToLower(word)]
	return ok
}

// Len returns the number of distinct words
func (d *Dictionary) Len() int {
	return len(d.words)
}

// QualityScorer rates recognized text for plausibility
type QualityScorer struct {
	dict       *Dictionary
	sampleSize int
}

// NewQualityScorer returns a scorer that checks at most sampleSize tokens.
// A sampleSize of 0 checks every token.
func NewQualityScorer(dict *Dictionary, sampleSize int) *QualityScorer {
	if dict == nil {
		dict = DefaultDictionary()
	}
	return &QualityScorer{dict: dict, sampleSize: sampleSize}
}

// Score computes word confidence and readability for text
func (s *QualityScorer) Score(text string) Quality {
	return Quality{
		WordConfidence:   s.WordConfidence(text),
		ReadabilityScore: Readability(text),
	}
}

// WordConfidence is the share of alphanumeric tokens found in the dictionary
func (s *QualityScorer) WordConfidence(text string) float64 {
	var tokens []string
	for _, tok := range strings.Fields(text) {
		if isAlphanumeric(tok) {
			tokens = append(tokens, tok)
		}
	}
	if s.sampleSize > 0 && len(tokens) > s.sampleSize {
		tokens = tokens[:s.sampleSize]
	}
	if len(tokens) == 0 {
		return 0
	}

	valid := 0
	for _, tok := range tokens {
		if s.dict.Contains(tok) {
			valid++
		}
	}
	return float64(valid) / float64(len(tokens))
}

func isAlphanumeric(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var sentencePattern = regexp.MustCompile(`\b[^.!?]+[.!?]*`)

// Readability returns the Flesch reading ease of text, rounded to two decimals.
// Text without words scores the formula's constant term.
func Readability(text string) float64 {
	words := lexicon(text)
	if len(words) == 0 {
		return 206.835
	}

	syllables := 0
	for _, w := range words {
		syllables += syllableCount(w)
	}

	sentenceLength := float64(len(words)) / float64(sentenceCount(text))
	syllablesPerWord := float64(syllables) / float64(len(words))

	score := 206.835 - 1.015*sentenceLength - 84.6*syllablesPerWord
	return math.Round(score*100) / 100
}

func lexicon(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(cleaned)
}

// sentenceCount ignores fragments of two words or fewer, and is at least 1
func sentenceCount(text string) int {
	sentences := sentencePattern.FindAllString(text, -1)
	count := 0
	for _, s := range sentences {
		if len(lexicon(s)) > 2 {
			count++
		}
	}
	if count < 1 {
		return 1
	}
	return count
}

func syllableCount(word string) int {
	word = strings.ToLower(word)
	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, word)
	if letters == "" {
		return 1
	}

	count := 0
	prevVowel := false
	for _, r := range letters {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}

	// silent trailing e
	if strings.HasSuffix(letters, "e") && !strings.HasSuffix(letters, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}
