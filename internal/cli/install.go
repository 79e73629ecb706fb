package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/install"
	"github.com/nickcecere/docqa/internal/ui"
)

// installCmd represents the install command.
var installCmd = &cobra.Command{
	Use:       "install <client>",
	Short:     "Register the docqa MCP server with an MCP client",
	ValidArgs: install.ClientNames(),
	Long: `Register 'docqa mcp' as an MCP server in a client's configuration.

Supported clients:
  - claude-code: Claude Code (~/.claude.json)
  - claude-desktop: Claude Desktop

Restart the client afterwards for the docqa tools to appear.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

// uninstallCmd represents the uninstall command.
var uninstallCmd = &cobra.Command{
	Use:       "uninstall <client>",
	Short:     "Remove the docqa MCP server from an MCP client",
	ValidArgs: install.ClientNames(),
	Args:      cobra.ExactArgs(1),
	RunE:      runUninstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	client, err := install.Lookup(args[0])
	if err != nil {
		return err
	}

	command, err := os.Executable()
	if err != nil {
		command = "docqa"
	} else if resolved, err := filepath.EvalSymlinks(command); err == nil {
		command = resolved
	}

	configPath := client.ConfigPath()
	if err := install.AddServer(configPath, command, []string{"mcp"}); err != nil {
		return fmt.Errorf("failed to install into %s: %w", client.DisplayName, err)
	}

	fmt.Println(ui.Success.Render("Installed docqa into " + client.DisplayName))
	fmt.Printf("Config updated: %s\n", configPath)
	fmt.Println(ui.Dim.Render("Restart " + client.DisplayName + " to load the docqa tools."))
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	client, err := install.Lookup(args[0])
	if err != nil {
		return err
	}

	removed, err := install.RemoveServer(client.ConfigPath())
	if err != nil {
		return fmt.Errorf("failed to uninstall from %s: %w", client.DisplayName, err)
	}
	if !removed {
		fmt.Printf("docqa is not installed in %s, nothing to uninstall\n", client.DisplayName)
		return nil
	}

	fmt.Println(ui.Success.Render("Uninstalled docqa from " + client.DisplayName))
	return nil
}
