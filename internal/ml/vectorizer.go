package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"

	"github.com/temcen/tripwise/pkg/models"
)

// EnglishStopWords is the default stop word list applied when a fitted
// vectorizer artifact does not carry its own.
var EnglishStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before", "being",
	"below", "between", "both", "but", "by", "can", "could", "did", "do", "does",
	"doing", "down", "during", "each", "few", "for", "from", "further", "had",
	"has", "have", "having", "he", "her", "here", "hers", "herself", "him",
	"himself", "his", "how", "i", "if", "in", "into", "is", "it", "its", "itself",
	"just", "me", "more", "most", "my", "myself", "no", "nor", "not", "now", "of",
	"off", "on", "once", "only", "or", "other", "our", "ours", "ourselves", "out",
	"over", "own", "same", "she", "should", "so", "some", "such", "than", "that",
	"the", "their", "theirs", "them", "themselves", "then", "there", "these",
	"they", "this", "those", "through", "to", "too", "under", "until", "up",
	"very", "was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "would", "you", "your", "yours", "yourself",
	"yourselves",
}

// TFIDFVectorizer turns free text into L2-normalized TF-IDF vectors over a
// fixed vocabulary. A fitted vectorizer is read-only and safe for concurrent use.
type TFIDFVectorizer struct {
	vocabulary map[string]int
	idf        []float64
	stopWords  map[string]struct{}
}

// NewTFIDFVectorizer builds a vectorizer from a previously fitted vocabulary.
func NewTFIDFVectorizer(vocabulary map[string]int, idf []float64, stopWords []string) (*TFIDFVectorizer, error) {
	if len(vocabulary) != len(idf) {
		return nil, fmt.Errorf("vocabulary size %d does not match idf length %d", len(vocabulary), len(idf))
	}
	for term, idx := range vocabulary {
		if idx < 0 || idx >= len(idf) {
			return nil, fmt.Errorf("term %q has out of range index %d", term, idx)
		}
	}
	if stopWords == nil {
		stopWords = EnglishStopWords
	}

	vocab := make(map[string]int, len(vocabulary))
	for term, idx := range vocabulary {
		vocab[term] = idx
	}

	return &TFIDFVectorizer{
		vocabulary: vocab,
		idf:        append([]float64(nil), idf...),
		stopWords:  stopWordSet(stopWords),
	}, nil
}

// FitTFIDF fits a vectorizer on a corpus using smoothed idf,
// idf(t) = ln((1+n)/(1+df(t))) + 1. Terms are indexed alphabetically.
func FitTFIDF(corpus []string, stopWords []string) *TFIDFVectorizer {
	if stopWords == nil {
		stopWords = EnglishStopWords
	}
	v := &TFIDFVectorizer{stopWords: stopWordSet(stopWords)}

	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range v.Tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	return v
}

// Tokenize folds case, strips diacritics and splits on anything that is not a
// letter or digit. Tokens shorter than two runes and stop words are dropped.
func (v *TFIDFVectorizer) Tokenize(text string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	cleaned, _, err := transform.String(t, text)
	if err != nil {
		cleaned = text
	}
	cleaned = cases.Fold().String(cleaned)

	fields := strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := v.stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Transform vectorizes text. Out-of-vocabulary text yields the zero vector.
func (v *TFIDFVectorizer) Transform(text string) []float64 {
	vec := make([]float64, len(v.idf))
	for _, tok := range v.Tokenize(text) {
		if idx, ok := v.vocabulary[tok]; ok {
			vec[idx]++
		}
	}
	floats.Mul(vec, v.idf)

	if n := floats.Norm(vec, 2); n > 0 {
		floats.Scale(1/n, vec)
	}
	return vec
}

// Dimensions returns the vocabulary size.
func (v *TFIDFVectorizer) Dimensions() int {
	return len(v.idf)
}

// Vocabulary returns a copy of the term index.
func (v *TFIDFVectorizer) Vocabulary() map[string]int {
	out := make(map[string]int, len(v.vocabulary))
	for k, idx := range v.vocabulary {
		out[k] = idx
	}
	return out
}

// HasTerms reports whether text contains at least one in-vocabulary term.
func (v *TFIDFVectorizer) HasTerms(text string) bool {
	for _, tok := range v.Tokenize(text) {
		if _, ok := v.vocabulary[tok]; ok {
			return true
		}
	}
	return false
}

// ItemText is the document an item contributes to the content index.
func ItemText(item models.Item) string {
	parts := []string{item.Destination, item.AccommodationType, item.Weather, item.Activities, item.Description}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func stopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[cases.Fold().String(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}
