package main

import (
	"context"
	"fmt"
	"os"

	"opsconsole/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "opsconsole:", err)
		os.Exit(1)
	}
}
