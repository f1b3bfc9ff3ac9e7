package cmd

import (
	"bufio"
	"context"
	"io"
	"strings"
)

type keyAction int

const (
	actionNone keyAction = iota
	actionExport
	actionRefresh
	actionQuit
)

func parseKey(line string) keyAction {
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "e", "export":
		return actionExport
	case "r", "refresh":
		return actionRefresh
	case "q", "quit", "exit":
		return actionQuit
	default:
		return actionNone
	}
}

// watchKeys reads one command per line from r until ctx is done or r ends.
func watchKeys(ctx context.Context, r io.Reader, handle func(keyAction)) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if ctx.Err() != nil {
			return
		}
		if a := parseKey(line); a != actionNone {
			handle(a)
		}
		if err != nil {
			return
		}
	}
}
