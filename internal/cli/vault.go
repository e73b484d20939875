package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/vault"
	"github.com/smart-env/obsidian-smart-env/internal/watch"
)

// NewVaultCommand creates the "vault" command group.
func NewVaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect the sources of an Obsidian vault",
	}
	cmd.AddCommand(newVaultListCommand())
	cmd.AddCommand(newVaultFindCommand())
	cmd.AddCommand(newVaultLinksCommand())
	cmd.AddCommand(newVaultWatchCommand())
	return cmd
}

func newVaultListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [vault]",
		Short: "List the markdown and canvas sources of a vault",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			sources, err := listVault(vaultArg(args))
			if err != nil {
				return err
			}
			if a.JSON {
				return printJSON(a.Out, map[string]any{"sources": sources})
			}
			for _, s := range sources {
				fmt.Fprintf(a.Out, "%8d  %s\n", s.Size, s.Path)
			}
			return nil
		},
	}
}

// vaultFindFlags holds the flag values for vault find.
type vaultFindFlags struct {
	vault string
	limit int
}

func newVaultFindCommand() *cobra.Command {
	flags := &vaultFindFlags{}

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Fuzzy-find sources by path",
		Long: `Rank the vault's sources by how well their path matches the query, the
way the context selector does.

Examples:
  smart-env vault find "smctx" --vault ~/notes --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			sources, err := listVault(flags.vault)
			if err != nil {
				return err
			}
			matches := vault.Find(strings.Join(args, " "), sources, flags.limit)
			if a.JSON {
				if matches == nil {
					matches = []vault.Match{}
				}
				return printJSON(a.Out, map[string]any{"matches": matches})
			}
			if len(matches) == 0 {
				fmt.Fprintln(a.Out, "No matches.")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintln(a.Out, Highlight(m.Source.Path, m.MatchedIndexes, bold))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.vault, "vault", ".", "Vault directory")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 20, "Maximum number of matches (0 for all)")
	return cmd
}

func newVaultLinksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "links <file.canvas>",
		Short: "Print the files and wikilinks referenced by a canvas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				if os.IsNotExist(err) {
					return model.WrapCLIError(model.ExitNotFound, fmt.Sprintf("%s not found", args[0]), err)
				}
				return err
			}
			links := vault.CanvasLinks(data)
			if a.JSON {
				return printJSON(a.Out, map[string]any{"links": links})
			}
			for _, l := range links {
				fmt.Fprintln(a.Out, l)
			}
			return nil
		},
	}
}

func newVaultWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [vault]",
		Short: "Print debounced changes to vault sources",
		Long: `Watch a vault and print one line per source once its changes settle,
using the delays from the watch section of the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runVaultWatch(cmd.Context(), a, vaultArg(args))
		},
	}
}

func runVaultWatch(ctx context.Context, a *app.App, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	handler := func(ev watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		printVaultEvent(a.Out, a.JSON, abs, ev)
	}

	w, err := watch.New([]string{abs}, handler, watch.Options{
		Delays: a.Config.Watch.KindDelays(),
		Filter: func(path string) bool {
			rel, err := filepath.Rel(abs, path)
			return err == nil && vault.IsSource(rel)
		},
		Logger: a.Log(),
	})
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to watch vault", err)
	}
	a.OnClose(w.Close)

	a.Logger.Info().Str("vault", abs).Msg("watching vault")
	return w.Run(ctx)
}

func printVaultEvent(w io.Writer, asJSON bool, root string, ev watch.Event) {
	rel, err := filepath.Rel(root, ev.Path)
	if err != nil {
		rel = ev.Path
	}
	rel = filepath.ToSlash(rel)
	if asJSON {
		_ = printJSON(w, map[string]string{"path": rel, "kind": ev.Kind.String()})
		return
	}
	fmt.Fprintf(w, "%-7s %s\n", ev.Kind, rel)
}

func listVault(root string) ([]vault.Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitNotFound, fmt.Sprintf("vault %s not found", root), err)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("%s is not a directory", root))
	}
	sources, err := vault.ListSources(root)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []vault.Source{}
	}
	return sources, nil
}

func vaultArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// Highlight wraps the characters of s at the given byte offsets with mark,
// merging adjacent offsets into one run.
//
// Example:
//
//	Highlight("notes/smart.md", []int{6, 7}, brackets) → "notes/[sm]art.md"
func Highlight(s string, indexes []int, mark func(...interface{}) string) string {
	if len(indexes) == 0 {
		return s
	}
	matched := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		matched[i] = true
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if !matched[i] {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		j := i
		for j < len(s) && matched[j] {
			_, n := utf8.DecodeRuneInString(s[j:])
			j += n
		}
		b.WriteString(mark(s[i:j]))
		i = j
	}
	return b.String()
}
