package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ghsync/internal/logging"
	"ghsync/pkg/config"
	"ghsync/pkg/github"
)

var (
	initForce    bool
	initValidate bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ghsync configuration",
	Long: `Create a default configuration file for ghsync.

The token given with --token is stored in the file. With --validate the token
is checked against the GitHub API first.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file without asking")
	initCmd.Flags().BoolVar(&initValidate, "validate", false, "Check the token against the GitHub API before saving")
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	configPath := configFlag
	if configPath == "" {
		var err error
		if configPath, err = config.GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Fprintf(out, "⚠️  Configuration file already exists at: %s\n", configPath)
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(out, "Use --force to overwrite it.")
			return nil
		}
		fmt.Fprint(out, "Do you want to overwrite it? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(out, "Configuration initialization cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	cfg.GitHub.Token = strings.TrimSpace(tokenFlag)
	if baseURLFlag != "" {
		cfg.GitHub.BaseURL = baseURLFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if initValidate {
		if cfg.GitHub.Token == "" {
			return fmt.Errorf("--validate needs a token, pass one with --token")
		}
		client, err := github.NewClient(github.ClientOptions{
			BaseURL: cfg.GitHub.BaseURL,
			Token:   cfg.GitHub.Token,
			Accept:  cfg.GitHub.Accept,
			Logger:  logging.New(cmd.ErrOrStderr(), quietFlag),
		})
		if err != nil {
			return err
		}
		info, err := client.ValidateToken(cmd.Context())
		if err != nil {
			return fmt.Errorf("token validation failed: %w", err)
		}
		fmt.Fprintf(out, "✓ Authenticated as %s\n", info.User)
		if missing := info.MissingScopes(); len(missing) > 0 {
			fmt.Fprintf(out, "⚠️  Token is missing scopes: %s\n", strings.Join(missing, ", "))
		}
	}

	if err := cfg.SaveConfigToPath(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "✅ Configuration file created at: %s\n", configPath)
	if cfg.GitHub.Token == "" {
		fmt.Fprintln(out, "📝 No token stored. Set $GITHUB_TOKEN or edit the file to add one.")
	}

	return nil
}
