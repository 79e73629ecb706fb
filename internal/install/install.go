// Package install registers the docqa MCP server with desktop MCP clients.
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// ServerName is the key docqa is registered under.
const ServerName = "docqa"

// Client is an MCP client whose JSON config has an "mcpServers" object.
type Client struct {
	Name        string
	DisplayName string
	ConfigPath  func() string
}

// Clients lists the supported MCP clients by name.
var Clients = map[string]Client{
	"claude-code": {
		Name:        "claude-code",
		DisplayName: "Claude Code",
		ConfigPath:  ClaudeCodeConfigPath,
	},
	"claude-desktop": {
		Name:        "claude-desktop",
		DisplayName: "Claude Desktop",
		ConfigPath:  ClaudeDesktopConfigPath,
	},
}

// ClientNames returns the supported client names, sorted.
func ClientNames() []string {
	names := make([]string, 0, len(Clients))
	for name := range Clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the client called name.
func Lookup(name string) (Client, error) {
	c, ok := Clients[name]
	if !ok {
		return Client{}, fmt.Errorf("unknown client %q (supported: %v)", name, ClientNames())
	}
	return c, nil
}

// ClaudeCodeConfigPath returns the path to the Claude Code config file.
func ClaudeCodeConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude.json")
}

// ClaudeDesktopConfigPath returns the path to the Claude Desktop config file.
func ClaudeDesktopConfigPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Claude", "claude_desktop_config.json")
		}
	}
	return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")
}

// AddServer registers command with args as the docqa MCP server in the
// config at configPath, creating the file if needed. Other keys are kept.
func AddServer(configPath, command string, args []string) error {
	config, err := readConfig(configPath)
	if err != nil {
		return err
	}

	mcpServers, ok := config["mcpServers"].(map[string]any)
	if !ok {
		mcpServers = make(map[string]any)
	}
	mcpServers[ServerName] = map[string]any{
		"command": command,
		"args":    args,
	}
	config["mcpServers"] = mcpServers

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfig(configPath, config)
}

// RemoveServer removes the docqa entry from the config at configPath. It
// reports false when there was nothing to remove.
func RemoveServer(configPath string) (bool, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	config, err := readConfig(configPath)
	if err != nil {
		return false, err
	}

	mcpServers, ok := config["mcpServers"].(map[string]any)
	if !ok {
		return false, nil
	}
	if _, ok := mcpServers[ServerName]; !ok {
		return false, nil
	}
	delete(mcpServers, ServerName)
	config["mcpServers"] = mcpServers

	return true, writeConfig(configPath, config)
}

func readConfig(configPath string) (map[string]any, error) {
	config := make(map[string]any)
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) == 0 {
		return config, nil
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse existing config: %w", err)
	}
	return config, nil
}

func writeConfig(configPath string, config map[string]any) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
