package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/bundle"
	"github.com/smart-env/obsidian-smart-env/internal/manifest"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// NewBundleCommand creates the "bundle" command group.
func NewBundleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect and extract plugin bundles",
	}
	cmd.AddCommand(newBundleInspectCommand())
	cmd.AddCommand(newBundleExtractCommand())
	return cmd
}

func newBundleInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <bundle.zip>",
		Short: "List the files, manifest and skipped entries of a bundle",
		Long: `Read a plugin bundle with the same reader the installer uses and show
what it would extract.

Examples:
  smart-env bundle inspect smart-context-1.2.0.zip
  smart-env bundle inspect smart-context-1.2.0.zip --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			res, err := readBundle(args[0])
			if err != nil {
				return err
			}
			if a.JSON {
				return printJSON(a.Out, bundleSummary(res))
			}
			printBundleText(a.Out, res)
			return nil
		},
	}
}

func newBundleExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <bundle.zip> <dir>",
		Short: "Extract the files of a bundle into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			res, err := readBundle(args[0])
			if err != nil {
				return err
			}
			for _, s := range res.Skipped {
				a.Logger.Warn().Str("entry", s.Name).Str("reason", s.Reason).Msg("skipped bundle entry")
			}
			if err := bundle.Install(args[1], res.Files); err != nil {
				return model.WrapCLIError(model.ExitInvalidBundle, "failed to extract bundle", err)
			}
			if a.JSON {
				return printJSON(a.Out, bundleSummary(res))
			}
			fmt.Fprintf(a.Out, "%s %d files to %s\n", green("extracted"), len(res.Files), args[1])
			return nil
		},
	}
}

func readBundle(path string) (*bundle.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitNotFound, fmt.Sprintf("%s not found", path), err)
		}
		return nil, err
	}
	res, err := bundle.Read(data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidBundle, fmt.Sprintf("failed to read %s", path), err)
	}
	return res, nil
}

type bundleFileJSON struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type bundleJSON struct {
	Files    []bundleFileJSON `json:"files"`
	Manifest *model.Manifest  `json:"manifest"`
	Problems []string         `json:"problems"`
	Skipped  []bundle.Skipped `json:"skipped"`
}

func bundleSummary(res *bundle.Result) bundleJSON {
	out := bundleJSON{
		Files:    make([]bundleFileJSON, 0, len(res.Files)),
		Manifest: res.Manifest,
		Problems: manifestProblems(res.Manifest),
		Skipped:  res.Skipped,
	}
	if out.Skipped == nil {
		out.Skipped = []bundle.Skipped{}
	}
	for _, f := range res.Files {
		out.Files = append(out.Files, bundleFileJSON{Name: f.Name, Size: len(f.Data)})
	}
	return out
}

// manifestProblems lists validation failures of m as "field: message".
// A missing manifest is reported as a problem.
func manifestProblems(m *model.Manifest) []string {
	if m == nil {
		return []string{"manifest.json: missing"}
	}
	problems := []string{}
	for _, p := range manifest.Validate(m) {
		problems = append(problems, p.Field+": "+p.Message)
	}
	return problems
}

// printBundleText prints a bundle summary:
//
//	manifest  smart-context 1.2.0 (Smart Context)
//	     120  manifest.json
//	   48213  main.js
//	skipped   docs.bin: unsupported compression method 12
func printBundleText(w io.Writer, res *bundle.Result) {
	if res.Manifest != nil {
		fmt.Fprintf(w, "%-9s %s %s (%s)\n", bold("manifest"), res.Manifest.ID, res.Manifest.Version, res.Manifest.Name)
	} else {
		fmt.Fprintf(w, "%-9s %s\n", bold("manifest"), yellow("none"))
	}
	for _, p := range manifestProblems(res.Manifest) {
		fmt.Fprintf(w, "%-9s %s\n", yellow("invalid"), p)
	}
	for _, f := range res.Files {
		fmt.Fprintf(w, "%8d  %s\n", len(f.Data), f.Name)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "%-9s %s: %s\n", yellow("skipped"), s.Name, s.Reason)
	}
}
