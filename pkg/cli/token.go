package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"
)

func (a *App) newTokenCommand() *Command {
	token := &Command{
		Name:        "token",
		Description: "Manage API tokens",
		Subcommands: make(map[string]*Command),
		Flags:       a.newFlagSet("token"),
		out:         a.out,
	}
	for _, cmd := range []*Command{
		a.newTokenCreateCommand(),
		a.newTokenListCommand(),
		a.newTokenRevokeCommand(),
		a.newTokenCleanupCommand(),
	} {
		token.Subcommands[cmd.Name] = cmd
	}
	return token
}

func (a *App) newTokenCreateCommand() *Command {
	cmd := a.newCommand("create", "Issue a token for a user", nil)
	user := cmd.Flags.String("user", "", "User id the token authenticates as")
	name := cmd.Flags.String("name", "", "Label for the token")
	ttl := cmd.Flags.Duration("ttl", 0, "Token lifetime; zero never expires")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("-user is required")
		}

		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			var expiresAt *time.Time
			if *ttl > 0 {
				t := time.Now().Add(*ttl).UTC()
				expiresAt = &t
			}

			apiToken, plaintext, err := rt.tokens.CreateToken(ctx, *user, *name, expiresAt)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Token %s created for %s\n", apiToken.ID, apiToken.UserID)
			fmt.Fprintf(a.out, "%s\n", plaintext)
			return nil
		})
	}
	return cmd
}

func (a *App) newTokenListCommand() *Command {
	cmd := a.newCommand("list", "List a user's tokens", nil)
	user := cmd.Flags.String("user", "", "User id")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("-user is required")
		}

		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			tokens, err := rt.tokens.ListUserTokens(ctx, *user)
			if err != nil {
				return err
			}
			if *asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(tokens)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPREFIX\tNAME\tSTATUS\tCREATED")
			now := time.Now()
			for _, t := range tokens {
				status := "active"
				if !t.Active(now) {
					status = "inactive"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.TokenPrefix, t.Name, status, t.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	}
	return cmd
}

func (a *App) newTokenRevokeCommand() *Command {
	cmd := a.newCommand("revoke", "Revoke a token", nil)
	id := cmd.Flags.String("id", "", "Token id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}

		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			if err := rt.tokens.RevokeToken(ctx, *id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Token %s revoked\n", *id)
			return nil
		})
	}
	return cmd
}

func (a *App) newTokenCleanupCommand() *Command {
	cmd := a.newCommand("cleanup", "Delete expired tokens", nil)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			n, err := rt.tokens.CleanupExpiredTokens(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %d expired tokens\n", n)
			return nil
		})
	}
	return cmd
}
