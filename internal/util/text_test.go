package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"empty":            {in: "", want: ""},
		"clean chunk":      {in: "Ada Lovelace wrote notes.", want: "Ada Lovelace wrote notes."},
		"multibyte runes":  {in: "Ada née Byron – 1815", want: "Ada née Byron – 1815"},
		"nul from pdf":     {in: "Analytical\x00 Engine", want: "Analytical Engine"},
		"invalid utf8":     {in: string([]byte{'A', 0xff, 0xfe, 'd', 'a'}), want: "Ada"},
		"nul and invalid":  {in: string([]byte{0x00, 'x', 0xc3}), want: "x"},
		"keeps form feeds": {in: "page one\fpage two", want: "page one\fpage two"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeText(tc.in))
		})
	}
}
