package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/docstudio/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	_ = godotenv.Load()

	rootCmd := newRootCommand(config.NewViper(), os.Stdout, os.Stdin)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	viper   *viper.Viper
	cfgFile string
	stdout  io.Writer
	stdin   io.Reader
}

func newRootCommand(configViper *viper.Viper, stdout io.Writer, stdin io.Reader) *cobra.Command {
	state := &cli{viper: configViper, stdout: stdout, stdin: stdin}

	rootCmd := &cobra.Command{
		Use:           "docstudio",
		Short:         "Author AI generated documents and presentations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.initConfig()
		},
	}
	rootCmd.SetOut(stdout)

	state.setupFlags(rootCmd)

	rootCmd.AddCommand(
		state.loginCommand(),
		state.signupCommand(),
		state.logoutCommand(),
		state.whoamiCommand(),
		state.projectsCommand(),
		state.openCommand(),
		state.showCommand(),
		state.feedbackCommand("like", "Like a section or slide"),
		state.feedbackCommand("dislike", "Dislike a section or slide"),
		state.commentCommand(),
		state.refineCommand(),
		state.downloadCommand(),
		state.suggestCommand(),
		state.newCommand(),
		state.serveCommand(),
	)
	return rootCmd
}

func (c *cli) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Backend API base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path for the local session")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("http-timeout", defaults.GetDuration("http.timeout"), "Timeout for backend requests")
	cmd.PersistentFlags().Float64("rate-limit", defaults.GetFloat64("http.rate_limit"), "Outbound requests per second (0 disables)")
	cmd.PersistentFlags().Int("rate-burst", defaults.GetInt("http.rate_burst"), "Outbound request burst")
	cmd.PersistentFlags().StringP("output", "o", defaults.GetString("output.format"), "Output format (json, yaml)")

	c.bindFlag(cmd, "api.base_url", "api-base-url")
	c.bindFlag(cmd, "database.path", "database-path")
	c.bindFlag(cmd, "log.level", "log-level")
	c.bindFlag(cmd, "http.timeout", "http-timeout")
	c.bindFlag(cmd, "http.rate_limit", "rate-limit")
	c.bindFlag(cmd, "http.rate_burst", "rate-burst")
	c.bindFlag(cmd, "output.format", "output")
}

func (c *cli) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := c.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.viper.SetConfigFile(c.cfgFile)
	} else {
		c.viper.SetConfigName("docstudio")
		c.viper.AddConfigPath(".")
	}

	if err := c.viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
