package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docgraph/pkg/common"
	"docgraph/pkg/loader"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

// Splitter packs sentences into token-bounded chunks.
//
// A Splitter should be created using NewSplitter.
type Splitter struct {
	count         TokenCounter
	maxTokens     int
	overlapTokens int
}

// NewSplitterParams defines the configuration for a Splitter.
//
// TokenEncoder names the tiktoken encoding used to count tokens. Counter
// overrides it when set. MaxTokens bounds every chunk except a single
// sentence that is longer on its own. OverlapTokens repeats trailing
// sentences of a chunk at the start of the next one, up to that many tokens.
type NewSplitterParams struct {
	TokenEncoder  string
	Counter       TokenCounter
	MaxTokens     int
	OverlapTokens int
}

// NewSplitter creates a Splitter.
//
// Example:
//
//	s, err := chunk.NewSplitter(chunk.NewSplitterParams{
//		TokenEncoder: "o200k_base",
//		MaxTokens:    200,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	chunks, err := s.Split(pages)
func NewSplitter(params NewSplitterParams) (*Splitter, error) {
	if params.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", params.MaxTokens)
	}
	if params.OverlapTokens < 0 || params.OverlapTokens >= params.MaxTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, %d), got %d", params.MaxTokens, params.OverlapTokens)
	}

	counter := params.Counter
	if counter == nil {
		enc, err := tiktoken.GetEncoding(params.TokenEncoder)
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoder %q: %w", params.TokenEncoder, err)
		}
		counter = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	}

	return &Splitter{
		count:         counter,
		maxTokens:     params.MaxTokens,
		overlapTokens: params.OverlapTokens,
	}, nil
}

// Split turns pages into an ordered sequence of chunks. Chunks never span a
// page boundary. Positions are 1-based and continuous across pages, and
// ContentOffset is the running rune offset of each chunk's text.
func (s *Splitter) Split(pages []loader.Page) ([]common.Chunk, error) {
	var chunks []common.Chunk
	offset := 0

	for _, page := range pages {
		for _, text := range s.pack(splitIntoSentences(page.Text)) {
			length := utf8.RuneCountInString(text)
			meta := common.ChunkMetadata{
				Position:      len(chunks) + 1,
				Length:        length,
				ContentOffset: offset,
				StartTime:     page.StartTime,
				EndTime:       page.EndTime,
			}
			if page.Number > 0 {
				n := page.Number
				meta.PageNumber = &n
			}

			chunks = append(chunks, common.Chunk{
				ID:       ID(text),
				Text:     text,
				Metadata: meta,
			})
			offset += length
		}
	}

	return chunks, nil
}

func joinSentences(sentences []string) string {
	return strings.TrimSpace(strings.Join(sentences, " "))
}

// pack greedily groups sentences into chunks of at most maxTokens.
func (s *Splitter) pack(sentences []string) []string {
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	start, end := 0, 1

	for i := 1; i < len(sentences); i++ {
		if s.count(joinSentences(sentences[start:i+1])) <= s.maxTokens {
			end = i + 1
			continue
		}

		out = append(out, joinSentences(sentences[start:end]))
		start = s.overlapStart(sentences, start, end)
		if s.count(joinSentences(sentences[start:i+1])) > s.maxTokens {
			start = i
		}
		end = i + 1
	}
	out = append(out, joinSentences(sentences[start:end]))

	return out
}

// overlapStart returns the first sentence of the trailing overlap window of
// the chunk [start, end). The window never includes the whole chunk, so
// packing always advances.
func (s *Splitter) overlapStart(sentences []string, start, end int) int {
	if s.overlapTokens == 0 {
		return end
	}
	j := end
	for j-1 > start && s.count(joinSentences(sentences[j-1:end])) <= s.overlapTokens {
		j--
	}
	return j
}
