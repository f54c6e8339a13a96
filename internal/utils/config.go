package utils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/escpos"
	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
)

const (
	DefaultSettingsPath = "config/settings.db"
	DefaultPreviewDir   = "previews"
	DefaultHostListen   = "127.0.0.1:8765"
	DefaultLogLevel     = "info"
)

// DefaultConfig is what a fresh install runs with.
func DefaultConfig(version string) model.Config {
	return model.Config{
		AppVersion:   version,
		SettingsPath: DefaultSettingsPath,
		PreviewDir:   DefaultPreviewDir,
		Interactive:  true,
		LogLevel:     DefaultLogLevel,
		Shop:         escpos.DefaultShop,
		Host:         model.HostCfg{Listen: DefaultHostListen},
	}
}

// LoadConfig decodes the TOML file at path on top of the defaults.
func LoadConfig(path, version string) (model.Config, error) {
	config := DefaultConfig(version)
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return config, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return config, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	fillDefaults(&config, version)
	return config, nil
}

func fillDefaults(config *model.Config, version string) {
	def := DefaultConfig(version)
	if config.AppVersion == "" {
		config.AppVersion = def.AppVersion
	}
	if config.SettingsPath == "" {
		config.SettingsPath = def.SettingsPath
	}
	if config.PreviewDir == "" {
		config.PreviewDir = def.PreviewDir
	}
	if config.LogLevel == "" {
		config.LogLevel = def.LogLevel
	}
	if config.Shop.Name == "" {
		config.Shop = def.Shop
	}
	if config.Host.Listen == "" {
		config.Host.Listen = def.Host.Listen
	}
}

func SaveConfig(path string, config model.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(config); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// LoadOrSetupConfig reads the config file named in ctx. On first run it asks
// the few questions that have no sensible default and writes the file.
func LoadOrSetupConfig(ctx context.Context, in io.Reader, out io.Writer) (model.Config, error) {
	configFile, _ := ctx.Value(model.ContextConfigFile).(string)
	version, _ := ctx.Value(model.ContextAppVersion).(string)
	if configFile == "" {
		return model.Config{}, fmt.Errorf("no config file in context")
	}

	if _, err := os.Stat(configFile); err == nil {
		return LoadConfig(configFile, version)
	} else if !os.IsNotExist(err) {
		return model.Config{}, err
	}

	config := DefaultConfig(version)
	reader := bufio.NewReader(in)
	ask := func(prompt, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s (default: %s): ", prompt, def)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return def
	}

	fmt.Fprintln(out, "--- Initial Setup ---")
	config.Shop.Name = ask("Shop name", config.Shop.Name)
	config.Shop.Branch = ask("Branch", config.Shop.Branch)
	config.HostURL = ask("Host IPC URL, empty for none", "")
	config.PreviewDir = ask("Preview directory", config.PreviewDir)

	if err := SaveConfig(configFile, config); err != nil {
		return config, err
	}
	fmt.Fprintln(out, "Configuration saved.")
	return config, nil
}
