package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghsync/internal/logging"
	"ghsync/pkg/config"
	"ghsync/pkg/github"
)

var (
	tokenFlag   string
	quietFlag   bool
	configFlag  string
	baseURLFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ghsync",
	Short: "Synchronize GitHub labels and milestones between repositories",
	Long: `ghsync copies the labels and milestones of a source repository to a
destination repository and marks the issues of past-due milestones as overdue.

Every command computes a plan first. Use --dry-run to print the plan without
changing anything on GitHub.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&tokenFlag, "token", "", "GitHub token (defaults to $GITHUB_API_TOKEN, $GITHUB_TOKEN, then the config file)")
	flags.BoolVarP(&quietFlag, "quiet", "q", false, "Only log progress, not every API request")
	flags.StringVar(&configFlag, "config", "", "Config file (default "+config.DisplayPath()+")")
	flags.StringVar(&baseURLFlag, "base-url", "", "GitHub API base URL, for GitHub Enterprise")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(milestonesCmd)
	rootCmd.AddCommand(overdueCmd)
}

// reportError prints a fatal error in red, with setup help for auth failures
func reportError(w io.Writer, err error) {
	red := color.New(color.FgRed)
	if logging.IsTerminal(w) {
		red.EnableColor()
	} else {
		red.DisableColor()
	}
	_, _ = red.Fprintf(w, "Error: %v\n", err)

	var ghErr *github.GitHubError
	if errors.As(err, &ghErr) && (ghErr.Type == github.ErrorTypeAuth || ghErr.Type == github.ErrorTypePermission) {
		fmt.Fprintf(w, "\n%s\n", github.GetAuthInstructions())
	}
}

// session holds what every sync command needs for one run
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	client *github.Client
}

func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadConfigFromPath(configFlag)
	}
	return config.LoadConfig()
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if baseURLFlag != "" {
		cfg.GitHub.BaseURL = baseURLFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cmd.ErrOrStderr(), quietFlag)

	token, source := github.NewAuthManager().GetToken(tokenFlag, cfg)
	if source == github.TokenSourceNone {
		logger.Warn("No GitHub token found, requests are unauthenticated and heavily rate limited")
	} else {
		logger.Debug("Using GitHub token", "source", string(source))
	}

	client, err := github.NewClient(github.ClientOptions{
		BaseURL:   cfg.GitHub.BaseURL,
		Token:     token,
		Accept:    cfg.GitHub.Accept,
		UserAgent: "ghsync",
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, client: client}, nil
}

// finish prints the run summary. Per-item failures only warn since every
// remaining change was still attempted.
func (s *session) finish(w io.Writer, result *github.ApplyResult) {
	displaySummary(w, result)

	if err := result.Err(); err != nil {
		s.logger.Warn(err.Error())
	}

	stats := s.client.RateLimitStats()
	if stats.TotalWaits > 0 {
		s.logger.Debug("Rate limit pacing", "waits", stats.TotalWaits, "delay", stats.TotalDelayTime)
	}
}
