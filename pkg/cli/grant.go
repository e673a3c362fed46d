package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
)

// rightFlags are the flags naming one grant.
type rightFlags struct {
	user       *string
	resource   *string
	rightType  *string
	permission *string
}

func addRightFlags(flags *flag.FlagSet) rightFlags {
	return rightFlags{
		user:       flags.String("user", "", "User id"),
		resource:   flags.String("resource", "", "Resource id; defaults to the root id for Root"),
		rightType:  flags.String("type", "", "Right type, e.g. Todo or Root"),
		permission: flags.String("rights", "", "Permission, e.g. Get|Put or FullControl"),
	}
}

// resolve parses the flags. requirePermission is false for removals.
func (f rightFlags) resolve(rootID string, requirePermission bool) (string, rights.RightType, rights.Permission, error) {
	if *f.user == "" {
		return "", 0, 0, fmt.Errorf("-user is required")
	}
	rightType, err := rights.ParseRightType(*f.rightType)
	if err != nil {
		return "", 0, 0, err
	}

	resourceID := *f.resource
	if resourceID == "" {
		if rightType != rights.Root {
			return "", 0, 0, fmt.Errorf("-resource is required for %s", rightType)
		}
		resourceID = rootID
	}

	if !requirePermission && *f.permission == "" {
		return resourceID, rightType, rights.None, nil
	}
	permission, err := rights.ParsePermission(*f.permission)
	if err != nil {
		return "", 0, 0, err
	}
	return resourceID, rightType, permission, nil
}

func (a *App) newGrantCommand() *Command {
	cmd := a.newCommand("grant", "Set or remove a user's right on a resource", nil)
	target := addRightFlags(cmd.Flags)
	remove := cmd.Flags.Bool("remove", false, "Remove the right instead of setting it")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			resourceID, rightType, permission, err := target.resolve(rt.cfg.Authz.RootID, !*remove)
			if err != nil {
				return err
			}

			if *remove {
				if err := rt.store.RemoveRight(ctx, *target.user, resourceID, rightType); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Removed %s on %s from %s\n", rightType, resourceID, *target.user)
				return nil
			}

			if _, err := rt.store.SetRight(ctx, *target.user, resourceID, rightType, permission); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Granted %s %s on %s to %s\n", permission, rightType, resourceID, *target.user)
			return nil
		})
	}
	return cmd
}

func (a *App) newCheckCommand() *Command {
	cmd := a.newCommand("check", "Report whether a user holds a permission", nil)
	target := addRightFlags(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		return a.withRuntime(func(ctx context.Context, rt *runtime) error {
			resourceID, rightType, permission, err := target.resolve(rt.cfg.Authz.RootID, true)
			if err != nil {
				return err
			}

			allowed, err := rights.NewResolver(rt.store).IsAllowed(ctx, *target.user, resourceID, rightType, permission)
			if err != nil {
				return err
			}
			if allowed {
				fmt.Fprintln(a.out, "allowed")
			} else {
				fmt.Fprintln(a.out, "denied")
			}
			return nil
		})
	}
	return cmd
}
