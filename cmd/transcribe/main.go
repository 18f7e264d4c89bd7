package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
)

func main() {
	cmd := newRootCommand(defaultDeps())
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, errorLine(err))
		}
		os.Exit(1)
	}
}

// errorLine is the one-line message printed before exiting.
func errorLine(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return fmt.Sprintf("エラー [%s]: %s", appErr.Code(), appErr.UserMessage())
	}
	return "エラー: " + err.Error()
}
