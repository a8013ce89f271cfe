package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type rootOptions struct {
	port       string
	configPath string
	verbose    bool
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	v := viper.New()
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pfp-quiz",
		Short:         "Profile-picture trivia game server powered by Gorilla WebSocket",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.port, "port", "", "port to listen on, overrides server.port (env: QUIZ_PORT)")
	fs.StringVar(&opts.configPath, "config", "config/config.yaml", "path to YAML config (env: QUIZ_CONFIG)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log every websocket command (env: QUIZ_VERBOSE)")

	// Environment variables fill any flag not set on the command line.
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}
