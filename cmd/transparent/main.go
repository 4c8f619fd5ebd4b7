package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/amkillam/transparent/internal/command"
	"github.com/amkillam/transparent/internal/runner"
)

var (
	verbose     bool
	detach      bool
	dir         string
	wrapper     string
	profilePath string
	setEnv      []string
	unsetEnv    []string
	logger      *zap.Logger

	// exitCode is the child's exit code in blocking mode
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "transparent [flags] [--] program [args...]",
	Short: "Run a program without any visible window",
	Long: `Transparent launches a program on an isolated, non-interactive surface so that
none of its windows appear on your desktop. On Windows the program runs on a
private desktop; elsewhere it runs inside xvfb-run.

By default transparent waits for the program and exits with its exit code.
Ctrl-C terminates the program. With --detach the process ID is printed and
transparent returns immediately.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger based on verbose flag
		levelEncoder := zapcore.CapitalLevelEncoder
		if term.IsTerminal(int(os.Stderr.Fd())) {
			levelEncoder = zapcore.CapitalColorLevelEncoder
		}

		var err error
		if verbose {
			// Development mode with console encoder for better readability
			config := zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = levelEncoder
			logger, err = config.Build()
		} else {
			// Production mode with custom config for cleaner output
			config := zap.NewProductionConfig()

			config.DisableCaller = true
			config.DisableStacktrace = true
			config.Encoding = "console"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			config.EncoderConfig.EncodeLevel = levelEncoder
			logger, err = config.Build()
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer func() {
			_ = logger.Sync()
		}()

		target, blocking, err := buildCommand(args)
		if err != nil {
			return err
		}

		r, err := runner.New(runner.Config{
			Wrapper: wrapper,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if !blocking {
			pid, err := r.SpawnNonBlocking(ctx, target)
			if err != nil {
				return fmt.Errorf("failed to launch %s: %w", target.Program, err)
			}
			fmt.Println(pid)
			return nil
		}

		code, err := r.SpawnAndWait(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to run %s: %w", target.Program, err)
		}
		logger.Debug("Program finished", zap.Int("exit_code", code))
		exitCode = code
		return nil
	},
}

func init() {
	// Disable Cobra's mousetrap feature on Windows
	// By default, Cobra shows a warning when launched from File Explorer instead of cmd.exe
	// Setting this to empty string allows the program to run normally from File Explorer
	// See: https://github.com/spf13/cobra/issues/844
	cobra.MousetrapHelpText = ""

	flags := rootCmd.Flags()
	flags.SetInterspersed(false)
	flags.BoolVarP(&detach, "detach", "d", false, "Print the process ID and return without waiting")
	flags.StringVar(&dir, "dir", "", "Working directory of the program")
	flags.StringVar(&wrapper, "wrapper", "", "Headless display wrapper (default xvfb-run, ignored on Windows)")
	flags.StringVarP(&profilePath, "profile", "p", "", "YAML run profile")
	flags.StringArrayVarP(&setEnv, "env", "e", nil, "Set an environment variable (KEY=VALUE), repeatable")
	flags.StringArrayVarP(&unsetEnv, "unset", "u", nil, "Remove an environment variable, repeatable")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// buildCommand merges the run profile with command-line flags and arguments.
// Flags win over the profile; positional arguments replace its program.
func buildCommand(args []string) (*command.Command, bool, error) {
	profile := &command.Profile{}
	if profilePath != "" {
		p, err := command.LoadProfile(profilePath)
		if err != nil {
			return nil, false, err
		}
		profile = p
	}

	if len(args) > 0 {
		profile.Program = args[0]
		profile.Args = args[1:]
	}
	if dir != "" {
		profile.Dir = dir
	}
	if wrapper == "" {
		wrapper = profile.Wrapper
	}

	cmd := profile.Command()
	for _, kv := range setEnv {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, false, fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
		}
		cmd.Set(key, value)
	}
	for _, key := range unsetEnv {
		cmd.Remove(key)
	}

	if err := cmd.Validate(); err != nil {
		return nil, false, err
	}

	return cmd, !(detach || profile.Detach), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}
