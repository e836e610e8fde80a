package models

import (
	"strings"
	"time"
)

// Invocation is one execution of an external command. Invocations are
// append-only: once the executor returns one it is never modified, except
// for RunID and SequenceNum which are assigned when it is persisted.
type Invocation struct {
	ID          int64
	RunID       int64
	SequenceNum int
	Binary      string
	Args        []string
	Dir         string
	Stdin       string
	DryRun      bool
	StartedAt   time.Time
	CompletedAt time.Time
	Stdout      string
	Stderr      string
	ExitCode    int
}

func (i *Invocation) Duration() time.Duration {
	return i.CompletedAt.Sub(i.StartedAt)
}

// CommandLine renders the invocation the way it could be typed into a shell.
func (i *Invocation) CommandLine() string {
	parts := make([]string, 0, len(i.Args)+1)
	parts = append(parts, shellQuote(i.Binary))
	for _, arg := range i.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
