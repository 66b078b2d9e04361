package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// execute runs one CLI invocation and releases everything it opened.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{v: viper.New()}
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "flaskion",
		Short: "Terminal client for the flaskion image service",
		Long: `flaskion signs in to a flaskion server, generates and edits images,
and browses, filters and downloads the image gallery.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("invalid output format %q (must be table, json or yaml)", a.output)
			}
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.flaskion/config.yaml)")
	flags.StringVarP(&a.output, "output", "o", outputTable, "output format (table, json, yaml)")
	flags.String("api", "", "API base URL")
	flags.String("auth-store", "", "token store (memory, file, redis)")
	flags.String("token-file", "", "token file for the file store")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (auto, console, json)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	_ = a.v.BindPFlag("api.base_url", flags.Lookup("api"))
	_ = a.v.BindPFlag("auth.store", flags.Lookup("auth-store"))
	_ = a.v.BindPFlag("auth.file", flags.Lookup("token-file"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	rootCmd.AddCommand(
		newSigninCmd(a),
		newSignupCmd(a),
		newMeCmd(a),
		newSignoutCmd(a),
		newGalleryCmd(a),
		newGenerateCmd(a),
		newEditCmd(a),
		newSettingsCmd(a),
	)

	return rootCmd
}
