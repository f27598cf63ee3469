package rag

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and slices text in model tokens.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Chunk struct {
	Text      string
	TokenSize int
	Index     int
}

type ChunkerConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// ReviewChunkerConfig sizes chunks for review passages: short enough to keep
// one opinion per chunk, with a sentence or so of overlap.
func ReviewChunkerConfig(maxTokens int) ChunkerConfig {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return ChunkerConfig{
		MaxTokens:     maxTokens,
		OverlapTokens: maxTokens / 8,
	}
}

// Chunker splits review text into sentence-aligned chunks.
type Chunker struct {
	tok Tokenizer
	cfg ChunkerConfig
}

// NewChunker uses the cl100k_base encoding when tok is nil.
func NewChunker(cfg ChunkerConfig, tok Tokenizer) *Chunker {
	if tok == nil {
		tok = &tiktokenizer{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 2
	}
	return &Chunker{tok: tok, cfg: cfg}
}

func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentencesUnicode(text)

	var chunks []Chunk
	var buf strings.Builder
	bufTokens := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:      strings.TrimSpace(buf.String()),
			TokenSize: bufTokens,
			Index:     len(chunks),
		})
		buf.Reset()
		bufTokens = 0
	}

	for i, sentence := range sentences {
		n := c.count(sentence)

		if n > c.cfg.MaxTokens {
			flush()
			for _, part := range c.sliceTokens(sentence) {
				part.Index = len(chunks)
				chunks = append(chunks, part)
			}
			continue
		}

		if bufTokens+n > c.cfg.MaxTokens && buf.Len() > 0 {
			flush()
			overlap := c.overlap(sentences, i)
			buf.WriteString(overlap)
			bufTokens = c.count(overlap)
		}

		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentence)
		bufTokens += n
	}
	flush()

	return chunks
}

// sliceTokens cuts a sentence longer than the budget at token boundaries.
func (c *Chunker) sliceTokens(text string) []Chunk {
	tokens := c.tok.Encode(text)

	var out []Chunk
	for i := 0; i < len(tokens); i += c.cfg.MaxTokens {
		end := min(i+c.cfg.MaxTokens, len(tokens))
		part := strings.TrimSpace(c.tok.Decode(tokens[i:end]))
		if part == "" {
			continue
		}
		out = append(out, Chunk{Text: part, TokenSize: end - i})
	}
	return out
}

func (c *Chunker) count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tok.Encode(text))
}

// overlap collects trailing sentences before idx until the overlap budget is met.
func (c *Chunker) overlap(sentences []string, idx int) string {
	if idx == 0 || c.cfg.OverlapTokens <= 0 {
		return ""
	}

	var picked []string
	tokens := 0
	for i := idx - 1; i >= 0 && tokens < c.cfg.OverlapTokens; i-- {
		n := c.count(sentences[i])
		if tokens+n > c.cfg.OverlapTokens && len(picked) > 0 {
			break
		}
		picked = append([]string{sentences[i]}, picked...)
		tokens += n
	}
	return strings.Join(picked, " ")
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '．': true, '…': true,
}

func splitSentencesUnicode(text string) []string {
	var sentences []string

	for _, para := range splitParagraphs(text) {
		var current strings.Builder
		runes := []rune(para)

		for i, r := range runes {
			current.WriteRune(r)
			if !sentenceEnders[r] {
				continue
			}
			// A terminator only ends a sentence before a space, the end, or CJK.
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || isCJK(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 && text != "" {
		return []string{text}
	}
	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\n", " "))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// tiktokenizer loads cl100k_base on first use.
type tiktokenizer struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func (t *tiktokenizer) load() *tiktoken.Tiktoken {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding("cl100k_base")
	})
	return t.enc
}

func (t *tiktokenizer) Encode(text string) []int {
	enc := t.load()
	if enc == nil {
		return fallbackEncode(text)
	}
	return enc.Encode(text, nil, nil)
}

func (t *tiktokenizer) Decode(tokens []int) string {
	enc := t.load()
	if enc == nil {
		return fallbackDecode(tokens)
	}
	return enc.Decode(tokens)
}

// Without the BPE ranks (offline hosts) a token is approximated by a rune.
func fallbackEncode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func fallbackDecode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}
