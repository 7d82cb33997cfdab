package loader

import (
	"context"
	"errors"
	"testing"

	"docgraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Page
	}{
		{
			name:  "single page",
			input: "Hello world.",
			want:  []Page{{Text: "Hello world."}},
		},
		{
			name:  "form feed pages",
			input: "first\fsecond\fthird",
			want: []Page{
				{Number: 1, Text: "first"},
				{Number: 2, Text: "second"},
				{Number: 3, Text: "third"},
			},
		},
		{
			name:  "blank page keeps numbering",
			input: "first\f \fthird",
			want: []Page{
				{Number: 1, Text: "first"},
				{Number: 3, Text: "third"},
			},
		},
		{
			name:  "crlf normalised",
			input: "a\r\nb",
			want:  []Page{{Text: "a\nb"}},
		},
		{
			name:  "empty",
			input: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPages(tt.input))
		})
	}
}

type stubFiles struct {
	content map[string]string
	cleaned []string
}

func (s *stubFiles) GetFileText(_ context.Context, src Source) ([]byte, error) {
	c, ok := s.content[src.Path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(c), nil
}

func (s *stubFiles) Cleanup(_ context.Context, src Source) error {
	s.cleaned = append(s.cleaned, src.Path)
	return nil
}

func TestMultiLoader(t *testing.T) {
	files := &stubFiles{content: map[string]string{"a.txt": "one\ftwo"}}
	l := NewMultiLoader(map[common.SourceKind]Loader{
		common.SourceLocal: NewPageLoader(files),
	})
	ctx := context.Background()

	pages, err := l.Load(ctx, Source{Name: "a.txt", Kind: common.SourceLocal, Path: "a.txt"})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[1].Number)

	_, err = l.Load(ctx, Source{Kind: common.SourceS3, Path: "a.txt"})
	assert.Error(t, err)

	require.NoError(t, l.Cleanup(ctx, Source{Kind: common.SourceLocal, Path: "a.txt"}))
	assert.Equal(t, []string{"a.txt"}, files.cleaned)
}

func TestSourceFromDocument(t *testing.T) {
	src := SourceFromDocument(common.Document{FileName: "page", FileSource: common.SourceWeb, URL: "https://example.com"})
	assert.Equal(t, "https://example.com", src.Path)

	src = SourceFromDocument(common.Document{FileName: "a.txt", FileSource: common.SourceLocal})
	assert.Equal(t, "a.txt", src.Path)
}
