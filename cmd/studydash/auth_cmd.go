package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				var err error
				if password, err = a.prompt("Password: "); err != nil {
					return err
				}
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.anonClient()
			if err != nil {
				return err
			}
			res, err := c.Login(ctx, username, password)
			if err != nil {
				return err
			}

			a.state.SetLogin(c.BaseURL(), res.Token, &res.User)
			if err := a.state.Save(); err != nil {
				return err
			}
			a.log.Debug("logged in", zap.String("server", c.BaseURL()), zap.Time("expires_at", res.ExpiresAt))
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", res.User.Username, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.state.Clear()
			if err := a.state.Save(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			me, err := c.Me(ctx)
			if err != nil {
				return err
			}
			renderTable(a.out, []string{"ID", "Username", "Email", "Role", "Server"}, [][]string{
				{fmt.Sprint(me.ID), me.Username, me.Email, string(me.Role), c.BaseURL()},
			})
			return nil
		},
	}
}

func newPasswordCmd(a *app) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if current == "" {
				if current, err = a.prompt("Current password: "); err != nil {
					return err
				}
			}
			if next == "" {
				if next, err = a.prompt("New password: "); err != nil {
					return err
				}
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if err := c.ChangePassword(ctx, current, next); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.anonClient()
			if err != nil {
				return err
			}
			h, err := c.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (database %s)\n", h.Status, h.Database)
			return nil
		},
	}
}
