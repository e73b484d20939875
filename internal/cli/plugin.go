package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/config"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/plugins"
	"github.com/smart-env/obsidian-smart-env/internal/release"
)

// NewPluginCommand creates the "plugin" command group.
func NewPluginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Browse and install plugins from the distribution server",
	}
	cmd.AddCommand(newPluginListCommand())
	cmd.AddCommand(newPluginReadmeCommand())
	cmd.AddCommand(newPluginInstallCommand())
	cmd.AddCommand(newPluginLoginCommand())
	return cmd
}

func newPluginListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the plugins available to your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			client, err := pluginClient(a, true)
			if err != nil {
				return err
			}
			list, err := client.List(cmd.Context())
			if err != nil {
				return pluginError("failed to list plugins", err)
			}
			if a.JSON {
				if list == nil {
					list = []model.PluginInfo{}
				}
				return printJSON(a.Out, map[string]any{"plugins": list})
			}
			printPluginList(a.Out, list)
			return nil
		},
	}
}

func newPluginReadmeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "readme <repo>",
		Short: "Print the README of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			client, err := pluginClient(a, true)
			if err != nil {
				return err
			}
			readme, err := client.Readme(cmd.Context(), args[0])
			if err != nil {
				return pluginError("failed to fetch README", err)
			}
			if a.JSON {
				return printJSON(a.Out, map[string]string{"repo": args[0], "readme": readme})
			}
			fmt.Fprintln(a.Out, strings.TrimRight(readme, "\n"))
			return nil
		},
	}
}

// pluginInstallFlags holds the flag values for plugin install.
type pluginInstallFlags struct {
	vault string
}

func newPluginInstallCommand() *cobra.Command {
	flags := &pluginInstallFlags{}

	cmd := &cobra.Command{
		Use:   "install <repo>...",
		Short: "Download plugins and install them into a vault",
		Long: `Download each plugin bundle and unpack it into
<vault>/.obsidian/plugins/<id>/, replacing files of an existing install.

Examples:
  smart-env plugin install brianpetro/smart-context --vault ~/notes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runPluginInstall(cmd.Context(), a, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.vault, "vault", ".", "Vault directory")
	return cmd
}

func runPluginInstall(ctx context.Context, a *app.App, flags *pluginInstallFlags, repos []string) error {
	client, err := pluginClient(a, true)
	if err != nil {
		return err
	}
	inst := &plugins.Installer{Downloader: client, Logger: a.Log()}

	installed := make([]*model.Manifest, 0, len(repos))
	for _, repo := range repos {
		m, err := inst.Install(ctx, flags.vault, repo)
		if err != nil {
			return err
		}
		installed = append(installed, m)
		if !a.JSON {
			fmt.Fprintf(a.Out, "%s %s %s -> %s\n", green("installed"), m.ID, m.Version, plugins.PluginDir(flags.vault, m.ID))
		}
	}
	if a.JSON {
		return printJSON(a.Out, map[string]any{"installed": installed})
	}
	return nil
}

// pluginLoginFlags holds the flag values for plugin login.
type pluginLoginFlags struct {
	token    string
	noVerify bool
}

func newPluginLoginCommand() *cobra.Command {
	flags := &pluginLoginFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the access token for the distribution server",
		Long: `Save the access token used for the distribution server. Without --token
the token is read from the terminal. The token is checked against the
server before it is saved unless --no-verify is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runPluginLogin(cmd.Context(), a, flags, release.NewReadlinePrompter())
		},
	}
	cmd.Flags().StringVar(&flags.token, "token", "", "Access token")
	cmd.Flags().BoolVar(&flags.noVerify, "no-verify", false, "Save without checking the token")
	return cmd
}

func runPluginLogin(ctx context.Context, a *app.App, flags *pluginLoginFlags, prompt release.Prompter) error {
	token := strings.TrimSpace(flags.token)
	if token == "" {
		answer, err := prompt.Ask("Access token:")
		if err != nil {
			if errors.Is(err, release.ErrCancelled) {
				return model.NewCLIError(model.ExitUserCancelled, "login cancelled")
			}
			return err
		}
		token = strings.TrimSpace(answer)
	}
	if token == "" {
		return model.NewCLIError(model.ExitMissingCredentials, "no token given")
	}
	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}

	if !flags.noVerify {
		client, err := plugins.NewClient(a.Config.Plugins.Server, oauth2.StaticTokenSource(tok))
		if err != nil {
			return pluginError("cannot verify token", err)
		}
		if _, err := client.List(ctx); err != nil {
			return pluginError("token was rejected", err)
		}
	}

	path, err := a.TokenPath()
	if err != nil {
		return err
	}
	if err := plugins.SaveToken(path, tok); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Msg("saved plugin server token")
	if a.JSON {
		return printJSON(a.Out, map[string]string{"token_file": path})
	}
	fmt.Fprintf(a.Out, "%s token saved to %s\n", green("logged in:"), path)
	return nil
}

// pluginClient builds the distribution client, mapping setup failures to
// exit codes.
func pluginClient(a *app.App, authenticated bool) (*plugins.Client, error) {
	client, err := a.PluginClient(authenticated)
	if err != nil {
		return nil, pluginError("cannot reach plugin server", err)
	}
	return client, nil
}

// pluginError maps plugin client errors to CLI exit codes.
func pluginError(message string, err error) error {
	switch {
	case errors.Is(err, plugins.ErrNoServer):
		return model.WrapCLIError(model.ExitNotFound,
			message+": set plugins.server in the config file or "+config.ServerEnvVar, err)
	case errors.Is(err, plugins.ErrNoToken):
		return model.WrapCLIError(model.ExitMissingCredentials, message+": run `smart-env plugin login` first", err)
	}

	var apiErr *plugins.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return model.WrapCLIError(model.ExitMissingCredentials, message, err)
	}
	return model.WrapCLIError(model.ExitRemoteError, message, err)
}

// printPluginList prints one plugin per line:
//
//	brianpetro/smart-context  1.2.0  Smart Context
func printPluginList(w io.Writer, list []model.PluginInfo) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No plugins available.")
		return
	}
	fmt.Fprintf(w, "%-36s %-10s %s\n", "REPO", "VERSION", "NAME")
	for _, p := range list {
		fmt.Fprintf(w, "%-36s %-10s %s\n", p.Repo, FormatVersion(p.Version), p.Name)
	}
}

// FormatVersion returns v, or "-" when it is empty.
func FormatVersion(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
