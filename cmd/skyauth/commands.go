package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/session"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, app *App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"login": {
		usage: "login <email> <password>",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if len(args) != 2 {
				return errUsage
			}
			if err := app.Session.Login(ctx, session.LoginForm{Email: args[0], Password: args[1]}); err != nil {
				return err
			}
			return printJSON(out, models.Message{Message: "User logged in successfully"})
		},
	},
	"register": {
		usage: "register <email> <password> [name]",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if len(args) < 2 || len(args) > 3 {
				return errUsage
			}
			form := session.RegisterForm{Email: args[0], Password: args[1], ConfirmPassword: args[1]}
			if len(args) == 3 {
				form.Name = args[2]
			}
			if err := app.Session.Register(ctx, form); err != nil {
				return err
			}
			return printJSON(out, models.Message{Message: "User registered successfully"})
		},
	},
	"whoami": {
		usage: "whoami",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			state := app.Session.Resolve(ctx)
			if state.Kind != session.Authenticated {
				if state.Err != nil {
					return fmt.Errorf("%s: %w", state.Kind, state.Err)
				}
				return fmt.Errorf("%s: login required", state.Kind)
			}
			return printJSON(out, state.User)
		},
	},
	"logout": {
		usage: "logout",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if err := app.Session.Logout(ctx); err != nil {
				return err
			}
			return printJSON(out, models.Message{Message: "User logged out successfully"})
		},
	},
	"refresh": {
		usage: "refresh",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if err := app.Session.Refresh(ctx); err != nil {
				return err
			}
			return printJSON(out, models.Message{Message: "Access token refreshed"})
		},
	},
	"profile": {
		usage: "profile",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			user, err := app.Session.Profile(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, user)
		},
	},
	"profile-update": {
		usage: "profile-update <name> <email> [gender]",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if len(args) < 2 || len(args) > 3 {
				return errUsage
			}
			form := session.ProfileForm{Name: args[0], Email: args[1]}
			if len(args) == 3 {
				form.Gender = args[2]
			}
			user, err := app.Session.UpdateProfile(ctx, form)
			if err != nil {
				return err
			}
			return printJSON(out, user)
		},
	},
	"profile-delete": {
		usage: "profile-delete",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			user, err := app.Session.Profile(ctx)
			if err != nil {
				return err
			}
			msg, err := app.Session.DeleteProfile(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(out, msg)
		},
	},
	"reset-password": {
		usage: "reset-password <email>",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if len(args) != 1 {
				return errUsage
			}
			msg, err := app.Session.RequestPasswordReset(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, msg)
		},
	},
	"exists": {
		usage: "exists <email>",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			if len(args) != 1 {
				return errUsage
			}
			exists, err := app.Session.EmailExists(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, models.UserExists{UserExists: exists})
		},
	},
	"serve": {
		usage: "serve",
		run: func(ctx context.Context, app *App, args []string, out io.Writer) error {
			return app.Serve(ctx)
		},
	},
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: skyauth [flags] <command> [args]\n\ncommands:\n")
	for _, name := range names {
		b.WriteString("  " + commands[name].usage + "\n")
	}
	return b.String()
}

// describe makes form errors readable in terminal
func describe(err error) string {
	var formErr *apperrors.FormError
	if errors.As(err, &formErr) && len(formErr.Fields) > 0 {
		return formErr.Error()
	}
	return err.Error()
}
