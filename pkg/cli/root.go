package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/config"
)

// Version is reported by the health endpoint; set with -ldflags at build time.
var Version = "dev"

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// App carries what every command needs
type App struct {
	ctx        context.Context
	out        io.Writer
	logOutput  io.Writer
	loadConfig func() (*config.Config, error)
}

// NewApp creates an App that reads its configuration from the environment
func NewApp(ctx context.Context) *App {
	return &App{
		ctx:        ctx,
		out:        os.Stdout,
		logOutput:  os.Stderr,
		loadConfig: config.LoadConfig,
	}
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	root := &Command{
		Name:        "todo-rights",
		Description: "Rights and authorization service for the todo API",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("todo-rights", flag.ContinueOnError),
		out:         app.out,
	}

	for _, cmd := range []*Command{
		app.newServeCommand(),
		app.newMigrateCommand(),
		app.newTokenCommand(),
		app.newGrantCommand(),
		app.newCheckCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		if len(subcmd.Subcommands) > 0 {
			return subcmd.Execute(args[1:])
		}
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newFlagSet creates a flag set that reports errors instead of exiting
func (a *App) newFlagSet(name string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(a.out)
	return flags
}

func (a *App) newCommand(name, description string, run func(args []string) error) *Command {
	return &Command{
		Name:        name,
		Description: description,
		Flags:       a.newFlagSet(name),
		Run:         run,
		out:         a.out,
	}
}
