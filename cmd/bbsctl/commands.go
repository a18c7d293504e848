package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cppla/gqlbbs/client"
)

type app struct {
	endpoint    string
	sessionFile string
	timeout     time.Duration
	client      *client.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	endpoint := os.Getenv("BBS_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4000/graphql"
	}

	root := &cobra.Command{
		Use:           "bbsctl",
		Short:         "Command line client for the gqlbbs board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(a.endpoint)
			if err != nil {
				return err
			}
			cookies, err := loadCookies(a.sessionFile)
			if err != nil {
				return fmt.Errorf("read session file: %w", err)
			}
			c.SetCookies(cookies)
			a.client = c
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return saveCookies(a.sessionFile, a.client.Cookies())
		},
	}
	root.PersistentFlags().StringVar(&a.endpoint, "endpoint", endpoint, "GraphQL endpoint")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", defaultSessionFile(), "file keeping the session cookie")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.meCmd(),
		a.postsCmd(),
		a.postCmd(),
		a.createPostCmd(),
		a.forgotPasswordCmd(),
		a.changePasswordCmd(),
	)
	return root
}

func (a *app) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// explain turns the not-authenticated signal into a hint.
func explain(err error) error {
	if errors.Is(err, client.ErrNotAuthenticated) {
		return errors.New("not logged in, run: bbsctl login <username or email> <password>")
	}
	return err
}

func (a *app) userResult(cmd *cobra.Command, res client.UserResponse, err error) error {
	if err != nil {
		return explain(err)
	}
	if len(res.Errors) > 0 {
		for _, fe := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", fe.Field, fe.Message)
		}
		return errors.New("request rejected")
	}
	return printJSON(cmd.OutOrStdout(), res.User)
}

func (a *app) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <username> <email> <password>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			res, err := a.client.Register(ctx, client.UsernamePasswordInput{Username: args[0], Email: args[1], Password: args[2]})
			return a.userResult(cmd, res, err)
		},
	}
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username or email> <password>",
		Short: "Log in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			res, err := a.client.Login(ctx, args[0], args[1])
			return a.userResult(cmd, res, err)
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			ok, err := a.client.Logout(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("server could not end the session")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			me, err := a.client.Me(ctx)
			if err != nil {
				return err
			}
			if me == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), me)
		},
	}
}

func (a *app) postsCmd() *cobra.Command {
	var (
		limit  int
		pages  int
		cursor string
	)
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()

			var items []client.Post
			next := cursor
			for i := 0; i < max(pages, 1); i++ {
				res, err := a.client.Posts(ctx, limit, next)
				if err != nil {
					return err
				}
				if len(res.Items) == len(items) {
					break
				}
				items = res.Items
				next = client.NextCursor(items)
			}
			for _, p := range items {
				author := "?"
				if p.Creator != nil {
					author = p.Creator.Username
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s (by %s, %d points)\n  %s\n", p.ID, p.Title, author, p.Points, p.TextSnippet)
			}
			if next != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "next cursor: %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "posts per page (at most 50)")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringVar(&cursor, "cursor", "", "start after this cursor")
	return cmd
}

func (a *app) postCmd() *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Show one post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			p, err := a.client.Post(ctx, id)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("post %d not found", id)
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "post id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (a *app) createPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-post <title> <text>",
		Short: "Publish a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			p, err := a.client.CreatePost(ctx, args[0], args[1])
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func (a *app) forgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			if _, err := a.client.ForgotPassword(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "if an account with that email exists, we sent you a mail")
			return nil
		},
	}
}

func (a *app) changePasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change-password <token> <new password>",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			res, err := a.client.ChangePassword(ctx, args[0], args[1])
			return a.userResult(cmd, res, err)
		},
	}
}
