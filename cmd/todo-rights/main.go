package main

import (
	"context"
	"fmt"
	"os"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/cli"
)

func main() {
	root := cli.NewRootCommand(cli.NewApp(context.Background()))
	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
