// Command sandboxctl runs a local source file through the same sandbox the
// HTTP server uses, without the HTTP layer or the history database.
//
//	sandboxctl run hello.cpp
//	sandboxctl run --lang python --timeout 2s script.txt
//	sandboxctl languages
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/sakif/code-sandbox/internal/config"
	"github.com/sakif/code-sandbox/internal/logging"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/sandbox"
	"github.com/sakif/code-sandbox/internal/service"
)

// errProgramFailed makes the process exit 1 without printing anything more;
// the program's own diagnostic has already been shown.
var errProgramFailed = errors.New("program failed")

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errProgramFailed) {
			fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		}
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "sandboxctl",
		Usage:     "compile and run untrusted code locally under the sandbox limits",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log supervisor activity to stderr",
			},
		},
		Commands: []*cli.Command{
			runCommand(stdout, stderr),
			languagesCommand(stdout, stderr),
		},
	}
}

func runCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run a source file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "lang",
				Aliases: []string{"l"},
				Usage:   "language (default: guessed from the file extension)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "wall-clock limit for the program (default: RUN_TIMEOUT)",
			},
			&cli.StringFlag{
				Name:  "scratch",
				Usage: "parent directory for the execution workspace (default: SCRATCH_DIR)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the result as {\"output\", \"error\"} JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("run: a source FILE is required")
			}
			code, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			lang := model.Language(cmd.String("lang"))
			if lang == "" {
				lang = languageFromExtension(path)
				if lang == "" {
					return fmt.Errorf("run: cannot tell the language of %s, use --lang", filepath.Base(path))
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if d := cmd.Duration("timeout"); d > 0 {
				cfg.RunTimeout = d
			}
			if dir := cmd.String("scratch"); dir != "" {
				cfg.ScratchDir = dir
			}

			logger := cliLogger(cmd, stderr)
			sb, err := sandbox.New(cfg, logger)
			if err != nil {
				return err
			}
			svc := service.NewExecutionService(sb.Registry, sb.Workspaces, logger)

			result, err := svc.Execute(ctx, lang, string(code))
			if err != nil {
				return err
			}

			if cmd.Bool("json") {
				enc := json.NewEncoder(stdout)
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(stdout, stderr, result)
			}

			if result.Error {
				return errProgramFailed
			}
			return nil
		},
	}
}

func languagesCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "list the languages this host can run",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sb, err := sandbox.New(cfg, cliLogger(cmd, stderr))
			if err != nil {
				return err
			}
			for _, lang := range sb.Registry.Languages() {
				fmt.Fprintln(stdout, lang)
			}
			return nil
		},
	}
}

func printResult(stdout, stderr io.Writer, result *model.ExecutionResult) {
	if !result.Error {
		fmt.Fprint(stdout, result.Output)
		if result.Output != "" && !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stderr, color.GreenString("✓ ok (%s)", result.Duration.Round(time.Millisecond)))
		return
	}

	fmt.Fprint(stderr, color.RedString("%s", result.Output))
	if !strings.HasSuffix(result.Output, "\n") {
		fmt.Fprintln(stderr)
	}
	fmt.Fprintln(stderr, color.RedString("✗ %s", strings.ReplaceAll(string(result.Kind), "_", " ")))
}

func cliLogger(cmd *cli.Command, stderr io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	return logging.New(stderr, level, "pretty")
}

func languageFromExtension(path string) model.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cpp", ".cc", ".cxx":
		return model.LanguageCPP
	case ".c":
		return model.LanguageC
	case ".py":
		return model.LanguagePython
	}
	return ""
}
