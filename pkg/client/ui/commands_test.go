package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{name: "blank", input: "   ", want: Command{Kind: CommandNone}},
		{name: "public", input: "hello there", want: Command{Kind: CommandPublic, Text: "hello there"}},
		{name: "quit", input: "/quit", want: Command{Kind: CommandQuit}},
		{
			name:  "private",
			input: "/private bob see you at  noon",
			want:  Command{Kind: CommandPrivate, Target: "bob", Text: "see you at  noon"},
		},
		{
			name:  "private without message",
			input: "/private bob",
			want:  Command{Kind: CommandInvalid, Text: "Usage: /private <user> <message>"},
		},
		{
			name:  "download",
			input: "/download report.pdf",
			want:  Command{Kind: CommandDownload, Target: "report.pdf"},
		},
		{
			name:  "download without file",
			input: "/download",
			want:  Command{Kind: CommandInvalid, Text: "Usage: /download <filename>"},
		},
		{
			name:  "unknown slash word is chat",
			input: "/shrug",
			want:  Command{Kind: CommandPublic, Text: "/shrug"},
		},
		{
			name:  "command prefix without space is chat",
			input: "/privatebob hi",
			want:  Command{Kind: CommandPublic, Text: "/privatebob hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInput(tt.input))
		})
	}
}
