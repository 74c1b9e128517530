// Command ledgerctl edits the ledger from a terminal. It opens the same
// backend as the server, so it is meant for the sqlite and wal backends
// while the server is stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	subtle    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#6E6E6E"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	idStyle     = lipgloss.NewStyle().Foreground(subtle).Width(16)
	amountStyle = lipgloss.NewStyle().Width(12).Align(lipgloss.Right).MarginRight(2)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(special).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

const usage = `usage: ledgerctl <command> [args]

commands:
  list                       show every expense and the total
  total                      show the total only
  add [amount] [item...]     add an expense (prompts when args are missing)
  edit <id> <amount> <item>  replace an expense
  delete <id>                remove an expense
  clear [-y]                 remove every expense
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLoggerTo(os.Stderr, envOr("LOG_LEVEL", "warn"), log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)
	store := cli.OpenLedger(ctx, logger, cfg, res)

	err := run(ctx, store, os.Stdout, os.Args[1], os.Args[2:])

	if cerr := store.Close(); cerr != nil {
		logger.Warn("Closing ledger failed", log.FieldError, cerr)
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Backend cleanup failed", log.FieldError, cerr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, store *ledger.Store, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "list", "ls":
		printLedger(out, store.Records(), store.Total())
		return nil
	case "total":
		fmt.Fprintln(out, totalStyle.Render("Total: "+store.Total().String()))
		return nil
	case "add":
		return runAdd(ctx, store, out, args)
	case "edit":
		return runEdit(ctx, store, out, args)
	case "delete", "rm":
		return runDelete(ctx, store, out, args)
	case "clear":
		return runClear(ctx, store, out, args)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func runAdd(ctx context.Context, store *ledger.Store, out io.Writer, args []string) error {
	var amount, item string
	if len(args) > 0 {
		amount = args[0]
	}
	if len(args) > 1 {
		item = strings.Join(args[1:], " ")
	}

	if amount == "" || strings.TrimSpace(item) == "" {
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Amount").
					Value(&amount).
					Validate(func(s string) error {
						_, err := core.ParseAmount(s)
						return err
					}),
				huh.NewInput().
					Title("Item").
					Value(&item).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("item cannot be empty")
						}
						return nil
					}),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	rec, err := store.Add(ctx, amount, item)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "added %d  %s  %s\n", rec.ID, rec.Amount, rec.Description)
	printTotal(out, store.Total())
	return nil
}

func runEdit(ctx context.Context, store *ledger.Store, out io.Writer, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: ledgerctl edit <id> <amount> <item>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rec, err := store.SaveEdit(ctx, id, args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "edited %d  %s  %s\n", rec.ID, rec.Amount, rec.Description)
	printTotal(out, store.Total())
	return nil
}

func runDelete(ctx context.Context, store *ledger.Store, out io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ledgerctl delete <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if _, ok := store.Get(id); !ok {
		return fmt.Errorf("expense %d: %w", id, ledger.ErrNotFound)
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d\n", id)
	printTotal(out, store.Total())
	return nil
}

func runClear(ctx context.Context, store *ledger.Store, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		confirm := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Remove all %d expenses?", store.Len())).
			Affirmative("Yes").
			Negative("No").
			Value(&confirm).
			Run()
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Fprintln(out, "nothing removed")
			return nil
		}
	}

	if err := store.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "ledger cleared")
	return nil
}

func printLedger(out io.Writer, records []core.Record, total core.Money) {
	if len(records) == 0 {
		fmt.Fprintln(out, lipgloss.NewStyle().Foreground(subtle).Render("No expenses yet."))
		printTotal(out, total)
		return
	}
	fmt.Fprintln(out, headerStyle.Render(idStyle.Render("ID")+amountStyle.Render("AMOUNT")+"ITEM"))
	for _, r := range records {
		fmt.Fprintln(out, idStyle.Render(strconv.FormatInt(r.ID, 10))+amountStyle.Render(r.Amount.String())+r.Description)
	}
	printTotal(out, total)
}

func printTotal(out io.Writer, total core.Money) {
	fmt.Fprintln(out, totalStyle.Render("Total: "+total.String()))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
