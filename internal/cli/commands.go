package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
	"github.com/amigocloud/amigocloud-go/internal/config"
	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
	envFile    string
	logLevel   string
)

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var infoLabel = color.New(color.FgCyan)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amigo [command] [flags]",
	Short: "AmigoCloud CLI - A command line interface for the AmigoCloud platform",
	Long: `AmigoCloud CLI is a command line interface for the AmigoCloud REST API.
It lets you call any API endpoint, upload data files into projects and follow
user or dataset events as they happen.

Examples:
  # Store your API token
  amigo login --token <token>

  # Show your projects
  amigo list /me/projects

  # Upload a shapefile into a project
  amigo upload 1234 5678 parcels.zip

  # Follow dataset events for a minute
  amigo listen --dataset 1234/5678/91011 --seconds 60`,
	PersistentPreRunE: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Set up persistent flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "", "", "Path to a .env file (default .env in the working directory)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	// Add commands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newMeCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	err := rootCmd.Execute()
	if err != nil {
		if jsonOutput {
			kv := map[string]any{
				"error": err.Error(),
			}
			var respErr *amigocloud.ResponseError
			if errors.As(err, &respErr) {
				kv["status"] = respErr.StatusCode
			}
			printJSON(os.Stdout, kv)
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// preRunHandlePersistents loads the configuration and sets up logging before any
// command runs.
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		var err error
		configFile, err = config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	logtrace.InitLogger(cfg.LogLevel, true)
	return nil
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of the amigo CLI",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				kv := map[string]string{
					"version":     getCLIVersion(),
					"library":     amigocloud.Version,
					"config_file": configFile,
				}
				printJSON(cmd.OutOrStdout(), kv)
			} else {
				cmd.Printf("amigo CLI %s (library %s)\n", getCLIVersion(), amigocloud.Version)
				cmd.Printf("Config file: %s\n", configFile)
			}
		},
	}
}

// printJSON prints the given value as indented JSON to w
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(w, string(jsonData))
}

// getCLIVersion returns the current CLI version
func getCLIVersion() string {
	return "v0.1.0"
}
