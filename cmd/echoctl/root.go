package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/logging"
	"github.com/echocoach/echo/internal/reportclient"
)

const (
	flagConfig   = "config"
	flagServer   = "server"
	flagToken    = "token"
	flagState    = "state"
	flagProfile  = "profile"
	flagLogLevel = "log-level"
)

// cli holds settings resolved by viper from flags, ECHO_* variables and the optional config
// file, in that order of precedence.
type cli struct {
	v   *viper.Viper
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), log: logging.Discard()}

	root := &cobra.Command{
		Use:           "echoctl",
		Short:         "Command line client for the Echo speaking coach",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String(flagConfig, "", "config file (default $XDG_CONFIG_HOME/echo/echoctl.yaml)")
	pf.String(flagServer, "http://127.0.0.1:8080", "Echo server base URL")
	pf.String(flagToken, "", "bearer token (defaults to the saved login)")
	pf.String(flagState, "", "local state database (default $XDG_CONFIG_HOME/echo/state.sqlite)")
	pf.String(flagProfile, "default", "local state profile")
	pf.String(flagLogLevel, "warn", "log level")
	_ = c.v.BindPFlags(pf)

	c.v.SetEnvPrefix("ECHO")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.registerCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.reportsCmd(),
		c.replayCmd(),
		c.driveCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if path := c.v.GetString(flagConfig); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		c.v.SetConfigName("echoctl")
		c.v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(dir, "echo"))
		}
		if err := c.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}

	log, err := logging.New(c.v.GetString(flagLogLevel), "text", cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	c.log = log
	return nil
}

// local is the opened state store plus the loaded profile state.
type local struct {
	store   *appstate.SQLiteStore
	state   *appstate.State
	profile string
}

func (c *cli) openLocal(ctx context.Context) (*local, error) {
	store, err := appstate.OpenSQLite(ctx, c.v.GetString(flagState))
	if err != nil {
		return nil, err
	}
	profile := c.v.GetString(flagProfile)
	st, err := store.Load(ctx, profile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &local{store: store, state: st, profile: profile}, nil
}

func (l *local) save(ctx context.Context) error {
	return l.store.Save(ctx, l.profile, l.state)
}

func (l *local) close() {
	_ = l.store.Close()
}

// client builds an API client carrying the --token flag or, failing that, the saved login.
func (c *cli) client(st *appstate.State) *reportclient.Client {
	client := reportclient.New(c.v.GetString(flagServer), nil)
	token := c.v.GetString(flagToken)
	if token == "" && st != nil {
		token = st.Token()
	}
	client.SetToken(token)
	return client
}
