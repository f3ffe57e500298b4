package engine

import (
	"math"
	"sort"
	"strings"
)

// Similarity scores how relevant content is to query. Implementations must be
// deterministic and return a value in [0,1]; higher is more relevant.
type Similarity func(content, query string) float64

// SubstringSimilarity is 1 when the query occurs in the content, ignoring
// case, and 0 otherwise.
func SubstringSimilarity(content, query string) float64 {
	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(content), q) {
		return 1
	}
	return 0
}

// KeywordSimilarity blends keyword overlap between query and content.
// Exact token hits count 1.0, substring hits 0.7. The score mixes a
// Jaccard-style overlap with query coverage.
func KeywordSimilarity(content, query string) float64 {
	keywords := dedupe(tokenize(query))
	if len(keywords) == 0 {
		return 0
	}

	target := strings.ToLower(content)
	targetSet := make(map[string]bool)
	for _, w := range tokenize(target) {
		targetSet[w] = true
	}

	var matched int
	var weighted float64
	for _, kw := range keywords {
		if targetSet[kw] {
			matched++
			weighted += 1.0
		} else if strings.Contains(target, kw) {
			matched++
			weighted += 0.7
		}
	}
	if matched == 0 {
		return 0
	}

	overlap := float64(matched)
	union := float64(len(keywords) + len(targetSet) - matched)
	jaccard := overlap / math.Max(union, 1)
	coverage := weighted / float64(len(keywords))

	return clampUnit(0.4*jaccard + 0.6*coverage)
}

// TFIDF scores cosine similarity between augmented TF-IDF vectors. The
// vocabulary and IDF weights come from the corpus it was built with.
type TFIDF struct {
	vocab []string
	index map[string]int
	idf   map[string]float64
}

// NewTFIDF builds a TF-IDF model over docs, keeping the maxTerms most common
// terms by document frequency.
func NewTFIDF(docs []string, maxTerms int) *TFIDF {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	df := make(map[string]int)
	for _, doc := range docs {
		for _, term := range dedupe(tokenize(doc)) {
			df[term]++
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	numDocs := math.Max(float64(len(docs)), 1)
	m := &TFIDF{
		vocab: make([]string, len(terms)),
		index: make(map[string]int, len(terms)),
		idf:   make(map[string]float64, len(terms)),
	}
	for i, tf := range terms {
		m.vocab[i] = tf.term
		m.index[tf.term] = i
		// smoothed: log(N/df) + 1
		m.idf[tf.term] = math.Log(numDocs/float64(tf.freq)) + 1.0
	}
	return m
}

// Dimensions returns the vocabulary size.
func (m *TFIDF) Dimensions() int { return len(m.vocab) }

// Vector returns the L2-normalised TF-IDF vector for text.
func (m *TFIDF) Vector(text string) []float64 {
	vec := make([]float64, len(m.vocab))
	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokenize(text) {
		tf[tok]++
		maxTF = max(maxTF, tf[tok])
	}
	for term, count := range tf {
		i, ok := m.index[term]
		if !ok {
			continue
		}
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		vec[i] = augTF * m.idf[term]
	}
	normalize(vec)
	return vec
}

// Similarity is a Similarity over the model's vocabulary.
func (m *TFIDF) Similarity(content, query string) float64 {
	return clampUnit(CosineSimilarity(m.Vector(content), m.Vector(query)))
}

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// tokenize splits text into lowercase tokens, dropping punctuation and
// single-character words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// clampUnit guards against floating point drift just outside [0,1].
func clampUnit(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
