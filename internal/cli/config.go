package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amigocloud/amigocloud-go/internal/config"
	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

var current *config.Config

// LoadConfig loads the configuration from file, falling back to defaults when the file
// does not exist, then applies the environment and the --log-level flag.
func LoadConfig(file string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(file)
		if err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvironment(envFile)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	current = cfg
	return cfg, nil
}

// GetConfig returns the current configuration
func GetConfig() *config.Config {
	if current == nil {
		return config.Default()
	}
	return current
}

// newClient returns an API client for the current configuration.
func newClient() (*amigocloud.Client, error) {
	cfg := *GetConfig()
	return amigocloud.New(&cfg, amigocloud.WithLogger(log.Logger))
}

// saveConfig writes cfg to the config file without the environment overrides of the
// current run.
func saveConfig(mutate func(*config.Config)) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}
	mutate(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Write(configFile); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Manage CLI configuration settings like the server URL, websockets and upload tuning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			chunkSize, _ := cmd.Flags().GetInt64("chunk-size")
			websockets, _ := cmd.Flags().GetString("websockets")
			if server == "" && chunkSize == 0 && websockets == "" {
				return cmd.Help()
			}
			cfg, err := saveConfig(func(c *config.Config) {
				if server != "" {
					c.BaseURL = config.NormalizeBaseURL(server)
				}
				if chunkSize != 0 {
					c.ChunkSize = chunkSize
				}
				switch websockets {
				case "on", "true":
					c.UseWebsockets = true
				case "off", "false":
					c.UseWebsockets = false
				}
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]any{
					"server":      cfg.BaseURL,
					"chunk_size":  cfg.ChunkSize,
					"websockets":  cfg.UseWebsockets,
					"config_file": configFile,
				})
			} else {
				okLabel.Fprintf(cmd.OutOrStdout(), "Server configured: %s\n", cfg.BaseURL)
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configFile)
			}
			return nil
		},
	}
	cmd.Flags().String("server", "", "Set the server URL (e.g., www.amigocloud.com)")
	cmd.Flags().Int64("chunk-size", 0, "Set the chunk size of chunked uploads in bytes")
	cmd.Flags().String("websockets", "", "Enable or disable event subscription (on|off)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *GetConfig()
			if cfg.Token != "" {
				cfg.Token = "xxxxx"
			}
			return printValue(cmd.OutOrStdout(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := saveConfig(func(c *config.Config) { c.Token = "" }); err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Token cleared. Log in again with \"amigo login --token <token>\"")
			}
			return nil
		},
	})
	return cmd
}

func init() {
	rootCmd.AddCommand(newConfigCmd())
}
