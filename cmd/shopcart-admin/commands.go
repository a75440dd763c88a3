package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/pkg/crypto"
	"github.com/prn-tf/shoppingcart/internal/repository"
	"github.com/prn-tf/shoppingcart/internal/service"
)

// cli dispatches admin commands to the services.
type cli struct {
	users        *service.UserService
	roles        *service.RoleService
	out          io.Writer
	readPassword func(prompt string) (string, error)
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("missing subcommand")
	}

	switch args[0] {
	case "user":
		return c.runUser(ctx, args[1], args[2:])
	case "role":
		return c.runRole(ctx, args[1], args[2:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *cli) runUser(ctx context.Context, sub string, args []string) error {
	fs := flag.NewFlagSet("user "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	id := fs.Int64("id", 0, "user ID")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "plaintext password")
	generate := fs.Bool("generate", false, "generate a random password")
	comments := fs.String("comments", "", "free-form comments")
	roles := fs.String("roles", "", "comma-separated role names")
	role := fs.String("role", "", "role name")
	cartID := fs.Int64("cart", 0, "cart ID")
	offset := fs.Int("offset", 0, "list offset")
	limit := fs.Int("limit", 0, "list limit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "create":
		pw, err := c.password(*password, *generate)
		if err != nil {
			return err
		}
		out, err := c.users.Create(ctx, service.CreateUserInput{
			Username: *username,
			Password: pw,
			Comments: *comments,
			Roles:    splitList(*roles),
		})
		if err != nil {
			return err
		}
		return c.printJSON(out.User)

	case "get":
		var user *domain.UserAccount
		var err error
		if *username != "" {
			user, err = c.users.GetByUsername(ctx, *username)
		} else {
			user, err = c.users.GetByID(ctx, *id)
		}
		if err != nil {
			return err
		}
		return c.printJSON(user)

	case "list":
		result, err := c.users.List(ctx, repository.ListOptions{Offset: *offset, Limit: *limit})
		if err != nil {
			return err
		}
		return c.printJSON(result)

	case "passwd":
		pw, err := c.password(*password, *generate)
		if err != nil {
			return err
		}
		if err := c.users.SetCredential(ctx, service.SetCredentialInput{UserID: *id, NewPassword: pw}); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "credential updated for user %d\n", *id)
		return nil

	case "authorities":
		auths, err := c.users.Authorities(ctx, *id)
		if err != nil {
			return err
		}
		return c.printJSON(auths)

	case "grant":
		user, err := c.users.GrantRole(ctx, *id, *role)
		if err != nil {
			return err
		}
		return c.printJSON(user.Authorities())

	case "revoke":
		user, err := c.users.RevokeRole(ctx, *id, *role)
		if err != nil {
			return err
		}
		return c.printJSON(user.Authorities())

	case "delete":
		if err := c.users.Delete(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "user %d deleted\n", *id)
		return nil

	case "carts":
		carts, err := c.users.ListCarts(ctx, *id)
		if err != nil {
			return err
		}
		return c.printJSON(carts)

	case "add-cart":
		cart, err := c.users.AddCart(ctx, *id)
		if err != nil {
			return err
		}
		return c.printJSON(cart)

	case "remove-cart":
		if err := c.users.RemoveCart(ctx, *id, *cartID); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "cart %d removed\n", *cartID)
		return nil

	default:
		return fmt.Errorf("unknown user subcommand: %s", sub)
	}
}

func (c *cli) runRole(ctx context.Context, sub string, args []string) error {
	fs := flag.NewFlagSet("role "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "role name")

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		roles, err := c.roles.List(ctx)
		if err != nil {
			return err
		}
		return c.printJSON(roles)

	case "create":
		role, err := c.roles.Create(ctx, *name)
		if err != nil {
			return err
		}
		return c.printJSON(role)

	case "delete":
		if err := c.roles.Delete(ctx, *name); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "role %s deleted\n", *name)
		return nil

	default:
		return fmt.Errorf("unknown role subcommand: %s", sub)
	}
}

// password resolves the credential from the flag, a generated value, or a prompt.
func (c *cli) password(flagValue string, generate bool) (string, error) {
	switch {
	case flagValue != "":
		return flagValue, nil
	case generate:
		pw, err := crypto.GeneratePassword(crypto.DefaultGeneratedPasswordLength)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(c.out, "generated password: %s\n", pw)
		return pw, nil
	default:
		return c.readPassword("Password: ")
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
