package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GraphOpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		EmbeddingModel:  "embed",
		ExtractionModel: "extract",
		EmbeddingDim:    3,
		EmbeddingURL:    srv.URL + "/",
		EmbeddingKey:    "test",
		ChatURL:         srv.URL + "/",
		ChatKey:         "test",
	})
}

func TestGenerateEmbeddings_BlankInputsSkipped(t *testing.T) {
	var requested []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		requested = body.Input
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"embed",
			"data":[{"object":"embedding","index":1,"embedding":[4,5,6,7]},{"object":"embedding","index":0,"embedding":[1,2]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	out, err := c.GenerateEmbeddings(context.Background(), [][]byte{[]byte("a"), []byte("  "), []byte("b")})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}
	if len(requested) != 2 || requested[0] != "a" || requested[1] != "b" {
		t.Fatalf("requested inputs = %v, want [a b]", requested)
	}
	want := [][]float32{{1, 2, 0}, {0, 0, 0}, {4, 5, 6}}
	for i := range want {
		for j := range want[i] {
			if out[i][j] != want[i][j] {
				t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
			}
		}
	}
	if got := c.GetMetrics().TotalTokens; got != 2 {
		t.Fatalf("metrics total tokens = %d, want 2", got)
	}
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":0,"model":"extract",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"name\":\"Ada\"}"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	})

	var out struct {
		Name string `json:"name"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "person", "a person", "who?", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if out.Name != "Ada" {
		t.Fatalf("name = %q, want Ada", out.Name)
	}
	if c.ExtractionModel() != "extract" {
		t.Fatalf("ExtractionModel() = %q", c.ExtractionModel())
	}
}

func TestGenerateCompletionWithFormat_NoClient(t *testing.T) {
	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{})
	var out struct{}
	if err := c.GenerateCompletionWithFormat(context.Background(), "x", "", "p", &out); err != ErrNoChatClient {
		t.Fatalf("err = %v, want ErrNoChatClient", err)
	}
}
