package cli

import (
	"context"
	"fmt"
)

func (a *App) newMigrateCommand() *Command {
	cmd := a.newCommand("migrate", "Create or upgrade the database schema", nil)
	bootstrap := cmd.Flags.Bool("bootstrap", false, "Also apply the configured bootstrap grants")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			if *bootstrap {
				if err := rt.bootstrap(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out, "Schema is up to date (%s)\n", rt.dialect)
			return nil
		})
	}
	return cmd
}
