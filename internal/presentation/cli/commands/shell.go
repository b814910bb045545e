package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// lineReader is the part of readline.Instance the shell uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// shellExcluded lists commands that cannot run inside the shell.
var shellExcluded = map[string]bool{
	"shell": true,
	"serve": true,
}

// NewShellCmd creates the interactive shell command.
func NewShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands against one long-lived engine",
		Long: `Start an interactive shell. Every line is run as a bandsync command
against the same engine, so connectivity changes, background reconciliation
and remote subscriptions carry over between commands.

Type "help" for the command list and "exit" to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.New(shellPrompt(offline.Offline))
			if err != nil {
				return fmt.Errorf("could not create readline: %w", err)
			}
			return runShell(cmd.Context(), rl, cmd.OutOrStdout())
		},
	}
}

func runShell(ctx context.Context, rl lineReader, w io.Writer) error {
	defer rl.Close()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := GetFormatter()
	formatter.Info("Type a command, \"help\" for the list, \"exit\" to leave.")

	for {
		if container := GetContainer(); container != nil {
			rl.SetPrompt(shellPrompt(container.Coordinator().CurrentConnectivity()))
		}

		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		args, err := splitArgs(line)
		if err != nil {
			formatter.Error("%v", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		}
		if shellExcluded[args[0]] {
			formatter.Error("%s cannot run inside the shell", args[0])
			continue
		}

		root := NewRootCmd()
		root.SetArgs(args)
		root.SetOut(w)
		root.SetErr(w)
		if err := root.ExecuteContext(ctx); err != nil {
			formatter.Error("%v", err)
		}
	}
}

func shellPrompt(state offline.ConnectivityState) string {
	return fmt.Sprintf("bandsync (%s)> ", state)
}

// splitArgs splits a command line on whitespace. Single and double quotes
// group words and a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
