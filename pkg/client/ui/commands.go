package ui

import (
	"strings"
)

// CommandKind identifies what an input line asks for
type CommandKind int

const (
	CommandNone CommandKind = iota // blank line
	CommandPublic
	CommandPrivate
	CommandDownload
	CommandQuit
	CommandInvalid
)

// Command is a parsed input line
type Command struct {
	Kind   CommandKind
	Target string // private recipient or filename
	Text   string // message content, or a usage hint for CommandInvalid
}

// ParseInput turns a typed line into a command. Lines not starting with a
// known slash command are public chat, including unknown slash words.
func ParseInput(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: CommandNone}
	}

	word, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "/quit":
		return Command{Kind: CommandQuit}

	case "/private":
		target, msg, ok := strings.Cut(rest, " ")
		msg = strings.TrimSpace(msg)
		if !ok || target == "" || msg == "" {
			return Command{Kind: CommandInvalid, Text: "Usage: /private <user> <message>"}
		}
		return Command{Kind: CommandPrivate, Target: target, Text: msg}

	case "/download":
		if rest == "" {
			return Command{Kind: CommandInvalid, Text: "Usage: /download <filename>"}
		}
		return Command{Kind: CommandDownload, Target: rest}
	}

	return Command{Kind: CommandPublic, Text: line}
}
