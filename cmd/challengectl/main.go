package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/logging"
	"github.com/8by8-org/challenge-api/internal/realtime"
	"github.com/8by8-org/challenge-api/internal/session"
)

var (
	baseURLFlag    string
	cookieFileFlag string
	verboseFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "challengectl",
	Short: "Drive an 8by8 challenge session from the terminal",
	Long: `challengectl signs in to the 8by8 challenge API and performs challenge
actions as that user. Cookies are kept in a file between invocations.

Environment:
  CHALLENGE_API_URL       API root (default http://localhost:8080)
  CHALLENGE_HTTP_TIMEOUT  per-request timeout (default 15s)
  CHALLENGE_COOKIE_FILE   cookie file (default in the user config dir)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "api", "", "API root URL (overrides CHALLENGE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&cookieFileFlag, "cookie-file", "", "cookie file (overrides CHALLENGE_COOKIE_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(signUpCmd, sendOTPCmd, resendOTPCmd, signInCmd, signOutCmd,
		awardCmd, restartCmd, refreshCmd, inviteCmd, whoamiCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg    config.ClientConfig
	logger *slog.Logger
	jar    *fileJar
	client *session.Client
}

func newApp() (*app, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return nil, err
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if cookieFileFlag != "" {
		cfg.CookieFile = cookieFileFlag
	}
	if cfg.CookieFile == "" {
		cfg.CookieFile = defaultCookieFile()
	}

	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	origin, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	jar, err := openFileJar(cfg.CookieFile, origin, logger)
	if err != nil {
		return nil, err
	}
	client, err := session.NewClient(cfg.BaseURL,
		session.WithHTTPClient(&http.Client{Jar: jar, Timeout: cfg.HTTPTimeout}),
		session.WithClientLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, jar: jar, client: client}, nil
}

// restore loads the server's view of the session into a store.
func (a *app) restore(ctx context.Context, opts ...session.Option) (*session.Store, error) {
	opts = append([]session.Option{
		session.WithLogger(a.logger),
		session.WithNavigator(session.NavigatorFunc(func(route string) {
			a.logger.Info("navigate", "route", route)
		})),
	}, opts...)
	return session.Restore(ctx, a.client, opts...)
}

func (a *app) realtime() (*realtime.Client, error) {
	return realtime.NewClient(a.cfg.BaseURL, a.jar, realtime.WithLogger(a.logger))
}

func printState(cmd *cobra.Command, st session.State) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(dto.SessionResponse{
		User:           st.User,
		InvitedBy:      st.InvitedBy,
		EmailForSignIn: st.EmailForSignIn,
	})
}
