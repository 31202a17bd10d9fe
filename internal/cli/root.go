package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/kestrel/internal/buildinfo"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/logging"
	"github.com/kestrelhq/kestrel/internal/loop"
	"github.com/kestrelhq/kestrel/internal/ui"
)

// Global flag values accessible to all subcommands.
var (
	flagVerbose       bool
	flagQuiet         bool
	flagNoColor       bool
	flagModel         string
	flagRoot          string
	flagRequest       string
	flagFiles         []string
	flagAutoAccept    bool
	flagInteractive   bool
	flagNoInteractive bool
)

// rootCmd is the base command for Kestrel.
var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Interactive AI coding session for your project",
	Long: `Kestrel runs an interactive coding session against a project directory.
It plans a user request into tasks, asks a model for concrete file edits,
shows each edit as a unified diff, and applies it after confirmation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSession,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check env vars for flags not explicitly set on command line.
		if !cmd.Flags().Changed("verbose") && os.Getenv("KESTREL_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("KESTREL_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Flags().Changed("no-color") && (os.Getenv("NO_COLOR") != "" || os.Getenv("KESTREL_NO_COLOR") != "") {
			flagNoColor = true
		}

		jsonFormat := os.Getenv("KESTREL_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		if flagNoColor {
			ui.DisableColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: KESTREL_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: KESTREL_QUIET)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: KESTREL_NO_COLOR, NO_COLOR)")

	rootCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Override the configured chat model")
	rootCmd.Flags().StringVar(&flagRoot, "project-root", ".", "Project directory to operate on")
	rootCmd.Flags().StringVarP(&flagRequest, "request", "r", "", "Run a single request and exit instead of starting an interactive session")
	rootCmd.Flags().StringSliceVar(&flagFiles, "files", nil, "Files to always include in the prompt context")
	rootCmd.Flags().BoolVarP(&flagAutoAccept, "auto-accept", "y", false, "Apply edits without asking for confirmation")
	rootCmd.Flags().BoolVar(&flagInteractive, "interactive", true, "Start an interactive session")
	rootCmd.Flags().BoolVar(&flagNoInteractive, "no-interactive", false, "Run a single --request and exit without entering the interactive session")
}

// runSession loads configuration, wires the runner, and either handles one
// request (--request) or enters the interactive prompt loop.
func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagRoot)
	if err != nil {
		return err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagAutoAccept {
		cfg.AutoAccept = true
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	console := ui.NewConsole(os.Stdout, cfg.AutoAccept)
	runner, err := loop.NewRunner(cfg, client, flagRoot, console)
	if err != nil {
		return err
	}
	runner.Pin(flagFiles)

	cfgPath, err := config.FindConfigFile(flagRoot)
	if err != nil {
		return err
	}
	if cfgPath == "" {
		cfgPath = filepath.Join(flagRoot, config.ConfigFileName)
	}
	sess := &session{cfg: cfg, client: client, console: console, cfgPath: cfgPath}

	console.Banner(buildinfo.Version, cfg.Model, cfg.APIBaseURL, flagRoot, cfg.AutoAccept)

	if flagNoInteractive {
		flagInteractive = false
	}
	if flagRequest != "" {
		if err := runner.HandleRequest(cmd.Context(), flagRequest); err != nil {
			return err
		}
		// Stay in the session only when --interactive was asked for explicitly.
		if !cmd.Flags().Changed("interactive") || !flagInteractive {
			return nil
		}
	}
	if !flagInteractive {
		if flagRequest == "" {
			return fmt.Errorf("nothing to do: pass --request or run interactively")
		}
		return nil
	}
	return interactive(cmd, runner, console, sess)
}

// interactive reads requests from stdin until EOF or an exit command.
// Session commands (model, auto-accept) change settings without leaving the
// prompt; a failed request is reported and the session continues.
func interactive(cmd *cobra.Command, runner *loop.Runner, console *ui.Console, sess *session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(os.Stdout, "kestrel> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if sess.handleCommand(line) {
			continue
		}

		if err := runner.HandleRequest(cmd.Context(), line); err != nil {
			console.Error("request failed: " + err.Error())
		}
	}
	return scanner.Err()
}

// Execute runs the root command and returns the exit code. An interrupt
// cancels the command context so blocking model calls and subprocesses stop
// promptly; file writes are atomic, so no file is left half-written.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
