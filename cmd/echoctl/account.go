package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echocoach/echo/internal/accounts"
	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/auth"
	"github.com/echocoach/echo/internal/reportclient"
)

func (c *cli) registerCmd() *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			sess, err := c.client(nil).Register(ctx, req)
			if err != nil {
				return describeAPIError(err)
			}
			loc.state.SetAuth(stateUser(sess.User), sess.Token)
			if err := loc.save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s <%s>\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password (at least 6 characters)")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var req auth.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the token in the local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			sess, err := c.client(nil).Login(ctx, req)
			if err != nil {
				return describeAPIError(err)
			}
			loc.state.SetAuth(stateUser(sess.User), sess.Token)
			if err := loc.save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved login, local sessions and stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()
			loc.state.Logout()
			if err := loc.save(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile and local practice stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			out := cmd.OutOrStdout()
			profile, err := c.client(loc.state).Profile(ctx)
			switch {
			case errors.Is(err, reportclient.ErrNoToken):
				fmt.Fprintln(out, "Not signed in")
			case err != nil:
				return describeAPIError(err)
			default:
				loc.state.UpdateUser(stateUser(profile))
				if err := loc.save(ctx); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s <%s>\n", profile.Name, profile.Email)
			}

			stats := loc.state.Stats()
			fmt.Fprintf(out, "sessions: %d  practice time: %ds  average score: %d  week: %d/%d\n",
				stats.TotalSessions, stats.TotalPracticeTime, stats.AverageScore, stats.WeeklyProgress, stats.WeeklyGoal)
			return nil
		},
	}
}

func stateUser(p accounts.Profile) appstate.User {
	return appstate.User{ID: p.ID, Email: p.Email, Name: p.Name, Bio: p.Bio, Avatar: p.Avatar}
}

// describeAPIError flattens field-level validation messages into the error text.
func describeAPIError(err error) error {
	var apiErr *reportclient.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err
	}
	msg := apiErr.Message
	for field, text := range apiErr.Fields {
		msg += fmt.Sprintf("\n  %s: %s", field, text)
	}
	return errors.New(msg)
}
