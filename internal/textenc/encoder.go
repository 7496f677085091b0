// Package textenc implements the Text Encoder: a deterministic mapping from
// a text blob to a fixed-dimension dense vector, shared by CB training and
// inference.
package textenc

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

// Encoder generates fixed-dimension dense embeddings for text blobs. The
// same input always produces the same output (within numerical tolerance);
// batched encode returns the same vectors as one-at-a-time encode.
type Encoder struct {
	redis  *redis.Client
	logger *logrus.Logger

	dimensions  int
	maxTokens   int
	cachePrefix string
	cacheTTL    time.Duration

	workerPool chan chan embeddingJob
	jobQueue   chan embeddingJob
	workers    []*embeddingWorker
}

type embeddingJob struct {
	text     string
	response chan embeddingResult
}

type embeddingResult struct {
	vector []float32
	err    error
	cached bool
}

type embeddingWorker struct {
	id         int
	enc        *Encoder
	jobChannel chan embeddingJob
	quit       chan struct{}
}

// Config controls worker concurrency, caching, and output dimension.
type Config struct {
	Dimensions  int
	MaxTokens   int
	WorkerCount int
	CachePrefix string
	CacheTTL    time.Duration
}

func New(redisClient *redis.Client, logger *logrus.Logger, cfg Config) *Encoder {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 4
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "embed:text"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	e := &Encoder{
		redis:       redisClient,
		logger:      logger,
		dimensions:  cfg.Dimensions,
		maxTokens:   cfg.MaxTokens,
		cachePrefix: cfg.CachePrefix,
		cacheTTL:    cfg.CacheTTL,
		workerPool:  make(chan chan embeddingJob, cfg.WorkerCount),
		jobQueue:    make(chan embeddingJob, cfg.WorkerCount*8),
	}
	e.startWorkers(cfg.WorkerCount)
	return e
}

func (e *Encoder) startWorkers(n int) {
	e.workers = make([]*embeddingWorker, n)
	for i := 0; i < n; i++ {
		w := &embeddingWorker{id: i, enc: e, jobChannel: make(chan embeddingJob), quit: make(chan struct{})}
		e.workers[i] = w
		go w.start()
	}
	go e.dispatch()
}

func (e *Encoder) dispatch() {
	for job := range e.jobQueue {
		jobChannel := <-e.workerPool
		jobChannel <- job
	}
}

func (w *embeddingWorker) start() {
	for {
		w.enc.workerPool <- w.jobChannel
		select {
		case job := <-w.jobChannel:
			w.process(job)
		case <-w.quit:
			return
		}
	}
}

func (w *embeddingWorker) process(job embeddingJob) {
	if vec, ok := w.enc.getCached(job.text); ok {
		job.response <- embeddingResult{vector: vec, cached: true}
		return
	}

	vec, err := w.enc.generate(job.text)
	if err != nil {
		job.response <- embeddingResult{err: err}
		return
	}

	w.enc.cache(job.text, vec)
	job.response <- embeddingResult{vector: vec}
}

// Encode returns the embedding for a single text blob.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("textenc: text cannot be empty")
	}

	job := embeddingJob{text: text, response: make(chan embeddingResult, 1)}
	select {
	case e.jobQueue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.response:
		return res.vector, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EncodeBatch encodes multiple texts, returning vectors in input order.
// Equivalent to calling Encode once per text.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("textenc: texts cannot be empty")
	}

	jobs := make([]embeddingJob, len(texts))
	for i, t := range texts {
		jobs[i] = embeddingJob{text: t, response: make(chan embeddingResult, 1)}
		select {
		case e.jobQueue <- jobs[i]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	results := make([][]float32, len(texts))
	for i, job := range jobs {
		res := <-job.response
		if res.err != nil {
			return nil, fmt.Errorf("textenc: encoding text %d: %w", i, res.err)
		}
		results[i] = res.vector
	}
	return results, nil
}

// Dimensions reports the fixed output dimension D.
func (e *Encoder) Dimensions() int { return e.dimensions }

func (e *Encoder) generate(text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}

	embedding := generateDeterministicEmbedding(text, tokens, e.dimensions)
	return l2Normalize(embedding), nil
}

func tokenize(text string) []string {
	text = norm.NFC.String(text)
	text = strings.ToLower(strings.TrimSpace(text))

	punctuationRegex := regexp.MustCompile(`([.!?,:;()\[\]{}'"])`)
	text = punctuationRegex.ReplaceAllString(text, " $1 ")

	words := strings.Fields(text)

	var tokens []string
	for _, word := range words {
		if len(word) == 0 {
			continue
		}
		if len(word) > 6 && !isPunctuation(word) {
			tokens = append(tokens, subwordTokenize(word)...)
		} else {
			tokens = append(tokens, word)
		}
	}

	result := []string{"[CLS]"}
	result = append(result, tokens...)
	result = append(result, "[SEP]")
	return result
}

func isPunctuation(s string) bool {
	const punctuation = ".!?,:;()[]{}'\""
	return len(s) == 1 && strings.Contains(punctuation, s)
}

func subwordTokenize(word string) []string {
	if len(word) <= 4 {
		return []string{word}
	}

	var tokens []string
	for i := 0; i < len(word); {
		end := i + 4
		if end > len(word) {
			end = len(word)
		}
		if end < len(word) && end-i < 6 {
			for j := end; j < min(len(word), i+6); j++ {
				if isVowel(rune(word[j])) {
					end = j
					break
				}
			}
		}
		token := word[i:end]
		if i > 0 {
			token = "##" + token
		}
		tokens = append(tokens, token)
		i = end
	}
	return tokens
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouAEIOU", r)
}

// generateDeterministicEmbedding builds a content-addressed vector: a
// content hash component, token-level features, length features, and a
// positional component, matching the same text to the same output always.
func generateDeterministicEmbedding(text string, tokens []string, dimensions int) []float32 {
	embedding := make([]float32, dimensions)

	hasher := sha256.New()
	hasher.Write([]byte(text))
	hash := hasher.Sum(nil)

	textLength := float32(len(text))
	tokenCount := float32(len(tokens))
	avgTokenLength := textLength / tokenCount

	for i := 0; i < dimensions; i++ {
		hashIndex := i % len(hash)
		hashComponent := (float32(hash[hashIndex])/255.0 - 0.5) * 0.4

		tokenComponent := tokenFeature(tokens, i) * 0.3

		lengthComponent := (textLength/100.0 - 0.5) * 0.2
		if i%4 == 0 {
			lengthComponent *= avgTokenLength / 10.0
		}

		posComponent := float32(0.1 * (float64(i)/float64(dimensions) - 0.5))

		var noiseBytes []byte
		noiseBytes = fmt.Appendf(noiseBytes, "%s_%d", text, i)
		noiseHash := sha256.Sum256(noiseBytes)
		noise := (float32(noiseHash[0])/255.0 - 0.5) * 0.05

		embedding[i] = hashComponent + tokenComponent + lengthComponent + posComponent + noise
	}

	return embedding
}

func tokenFeature(tokens []string, dimension int) float32 {
	if len(tokens) == 0 {
		return 0
	}

	var feature float32
	switch dimension % 8 {
	case 0:
		count := 0
		for _, t := range tokens {
			if isPunctuation(t) {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	case 1:
		total := 0
		for _, t := range tokens {
			total += len(t)
		}
		feature = float32(total) / float32(len(tokens)) / 10.0
	case 2:
		count := 0
		for _, t := range tokens {
			if strings.HasPrefix(t, "##") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	case 3:
		count := 0
		for _, t := range tokens {
			if len(t) > 0 && t[0] >= 'A' && t[0] <= 'Z' {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	case 4:
		vowels, total := 0, 0
		for _, t := range tokens {
			for _, r := range t {
				total++
				if isVowel(r) {
					vowels++
				}
			}
		}
		if total > 0 {
			feature = float32(vowels) / float32(total)
		}
	case 5:
		unique := make(map[string]bool)
		for _, t := range tokens {
			unique[t] = true
		}
		feature = float32(len(unique)) / float32(len(tokens))
	case 6:
		count := 0
		for _, t := range tokens {
			if _, err := strconv.ParseFloat(t, 32); err == nil {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	case 7:
		count := 0
		for _, t := range tokens {
			if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	}

	return feature - 0.5
}

func l2Normalize(embedding []float32) []float32 {
	vec := make([]float64, len(embedding))
	for i, v := range embedding {
		vec[i] = float64(v)
	}

	norm := floats.Norm(vec, 2)
	if norm == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, v := range vec {
		normalized[i] = float32(v / norm)
	}
	return normalized
}

func (e *Encoder) getCached(text string) ([]float32, bool) {
	key := e.cacheKey(text)

	ctx := context.Background()
	result, err := e.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(result), &embedding); err != nil {
		e.logger.WithFields(logrus.Fields{"error": err.Error(), "key": key}).Warn("failed to deserialize cached embedding")
		return nil, false
	}
	return embedding, true
}

func (e *Encoder) cache(text string, embedding []float32) {
	key := e.cacheKey(text)

	data, err := json.Marshal(embedding)
	if err != nil {
		e.logger.WithFields(logrus.Fields{"error": err.Error(), "key": key}).Warn("failed to serialize embedding for caching")
		return
	}

	ctx := context.Background()
	if err := e.redis.Set(ctx, key, data, e.cacheTTL).Err(); err != nil {
		e.logger.WithFields(logrus.Fields{"error": err.Error(), "key": key}).Warn("failed to cache embedding")
	}
}

func (e *Encoder) cacheKey(text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(text))
	contentHash := fmt.Sprintf("%x", hasher.Sum(nil))[:16]
	return fmt.Sprintf("%s:%d:%s", e.cachePrefix, e.dimensions, contentHash)
}

// Stop gracefully shuts down the encoder's worker pool.
func (e *Encoder) Stop() {
	for _, w := range e.workers {
		close(w.quit)
	}
	e.logger.Info("text encoder stopped")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
