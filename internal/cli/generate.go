package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/envgen"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// generateFlags holds the flag values shared by generate and watch.
// Empty values fall back to the generate section of the config file.
type generateFlags struct {
	roots     []string
	dest      string
	output    string
	extension string
}

// bind registers the flags on cmd.
func (f *generateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.roots, "root", "r", nil,
		"Source root to scan; repeat for more, later roots override earlier ones")
	cmd.Flags().StringVarP(&f.dest, "dest", "d", "", "Directory the config module is written to")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Generated file name")
	cmd.Flags().StringVar(&f.extension, "ext", "", "Source file extension (default .js)")
}

// options merges the flags over the configuration.
func (f *generateFlags) options(a *app.App) (roots []string, dest string, opts envgen.GenerateOptions, err error) {
	cfg := a.Config.Generate

	roots = cfg.Roots
	if len(f.roots) > 0 {
		roots = f.roots
	}
	dest = firstNonEmpty(f.dest, cfg.Dest, ".")

	cache, err := a.ExportCache()
	if err != nil {
		return nil, "", opts, err
	}
	opts = envgen.GenerateOptions{
		Options: envgen.Options{
			Extension: firstNonEmpty(f.extension, cfg.Extension),
			Cache:     cache,
		},
		OutputName: firstNonEmpty(f.output, cfg.Output),
	}
	return roots, dest, opts, nil
}

// NewGenerateCommand creates the "generate" cobra command.
func NewGenerateCommand() *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the environment config module from source roots",
		Long: `Scan the collections, items, modules, components and actions folders of
each source root and write the static import/config module consumed by the
environment bootstrapper. The file is only rewritten when its content changes.

Examples:
  smart-env generate --root ../smart-env --root . --dest dist
  smart-env generate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), a, flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runGenerate(ctx context.Context, a *app.App, flags *generateFlags) error {
	roots, dest, opts, err := flags.options(a)
	if err != nil {
		return err
	}
	res, err := envgen.Generate(ctx, roots, dest, opts)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to generate config module", err)
	}

	a.Logger.Debug().Strs("roots", roots).Str("path", res.Path).Bool("changed", res.Changed).Msg("generated")
	return printGenerateResult(a.Out, a.JSON, res)
}

type generateJSON struct {
	Path    string         `json:"path"`
	Changed bool           `json:"changed"`
	Counts  map[string]int `json:"counts"`
}

func printGenerateResult(w io.Writer, asJSON bool, res *envgen.Result) error {
	if asJSON {
		out := generateJSON{Path: res.Path, Changed: res.Changed, Counts: map[string]int{}}
		for cat, n := range res.Counts {
			out.Counts[cat.String()] = n
		}
		return printJSON(w, out)
	}

	status := green("wrote")
	if !res.Changed {
		status = yellow("unchanged")
	}
	_, err := fmt.Fprintf(w, "%s %s (%s)\n", status, res.Path, FormatCounts(res.Counts))
	return err
}

// FormatCounts renders per-category entry counts in category order, e.g.
// "collections=2 items=1 modules=0 components=3 actions=1".
func FormatCounts(counts map[model.Category]int) string {
	parts := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[c]))
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// scanFlags holds the flag values for the scan command.
type scanFlags struct {
	generateFlags

	// category filters entries; "all" shows every category.
	category string
}

// NewScanCommand creates the "scan" cobra command.
func NewScanCommand() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the entries the generator would import",
		Long: `Scan the source roots like generate does and list the surviving entries
without writing anything.

Examples:
  smart-env scan --root ../smart-env --root .
  smart-env scan --category actions --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), a, flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&flags.category, "category", "all",
		"Filter by category: collections, items, modules, components, actions, all")
	return cmd
}

func runScan(ctx context.Context, a *app.App, flags *scanFlags) error {
	cats := model.Categories
	if flags.category != "all" {
		c, err := model.ParseCategory(flags.category)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid --category", err)
		}
		cats = []model.Category{c}
	}

	roots, _, opts, err := flags.options(a)
	if err != nil {
		return err
	}
	catalog, err := envgen.Scan(ctx, roots, opts.Options)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to scan source roots", err)
	}

	var entries []envgen.Entry
	for _, c := range cats {
		entries = append(entries, catalog.Section(c)...)
	}
	if a.JSON {
		return printJSON(a.Out, map[string]any{"entries": scanEntriesJSON(entries)})
	}
	printScanText(a.Out, entries)
	return nil
}

type scanEntryJSON struct {
	Category   string   `json:"category"`
	Key        string   `json:"key"`
	Export     string   `json:"export"`
	Ident      string   `json:"ident"`
	Path       string   `json:"path"`
	Companions []string `json:"companions,omitempty"`
}

func scanEntriesJSON(entries []envgen.Entry) []scanEntryJSON {
	out := make([]scanEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, scanEntryJSON{
			Category:   e.Category.String(),
			Key:        e.Key,
			Export:     e.Export,
			Ident:      e.Ident,
			Path:       e.Path,
			Companions: e.Companions,
		})
	}
	return out
}

// printScanText prints one entry per line:
//
//	CATEGORY     KEY                  PATH
//	actions      run_lookup           /src/actions/run_lookup.js
func printScanText(w io.Writer, entries []envgen.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}
	fmt.Fprintf(w, "%-12s %-32s %s\n", "CATEGORY", "KEY", "PATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%-12s %-32s %s\n", e.Category, e.Key, e.Path)
	}
}
