package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/8by8-org/challenge-api/internal/session"
)

var (
	emailFlag   string
	nameFlag    string
	avatarFlag  string
	captchaFlag string
)

// storeCommand restores the session, runs op against it and prints the
// resulting state.
func storeCommand(op func(ctx context.Context, s *session.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := a.restore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := op(ctx, store); err != nil {
			return err
		}
		return printState(cmd, store.State())
	}
}

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and mail a passcode",
	Long: `Create an account and mail a one-time passcode to it.

If an invite code was resolved earlier with "challengectl invite", the new
account joins as that challenger's player.`,
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		return s.SignUpWithEmail(ctx, emailFlag, nameFlag, avatarFlag, captchaFlag)
	}),
}

var sendOTPCmd = &cobra.Command{
	Use:   "send-otp",
	Short: "Mail a passcode to an existing account",
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		return s.SendOTPToEmail(ctx, emailFlag, captchaFlag)
	}),
}

var resendOTPCmd = &cobra.Command{
	Use:   "resend-otp",
	Short: "Mail a new passcode to the address awaiting sign-in",
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		if s.State().EmailForSignIn == "" {
			return fmt.Errorf("no address is awaiting a passcode; run signup or send-otp first")
		}
		return s.ResendOTP(ctx)
	}),
}

var signInCmd = &cobra.Command{
	Use:   "signin <passcode>",
	Short: "Sign in with the mailed passcode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeCommand(func(ctx context.Context, s *session.Store) error {
			if s.State().EmailForSignIn == "" {
				return fmt.Errorf("no address is awaiting a passcode; run signup or send-otp first")
			}
			return s.SignInWithOTP(ctx, args[0])
		})(cmd, args)
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "End the session",
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		return s.SignOut(ctx)
	}),
}

var awardCmd = &cobra.Command{
	Use:       "award <election-reminders|register|share>",
	Short:     "Record a completed challenge action",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"election-reminders", "register", "share"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeCommand(func(ctx context.Context, s *session.Store) error {
			if !s.State().SignedIn() {
				return fmt.Errorf("not signed in")
			}
			switch args[0] {
			case "election-reminders":
				return s.GotElectionReminders(ctx)
			case "register":
				return s.RegisteredToVote(ctx)
			default:
				return s.ShareChallenge(ctx)
			}
		})(cmd, args)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart an expired challenge",
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		return s.RestartChallenge(ctx)
	}),
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the signed-in user",
	RunE: storeCommand(func(ctx context.Context, s *session.Store) error {
		if !s.State().SignedIn() {
			return fmt.Errorf("not signed in")
		}
		return s.RefreshUser(ctx)
	}),
}

var inviteCmd = &cobra.Command{
	Use:   "invite <code>",
	Short: "Accept a challenger's invite before signing up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		invitedBy, err := a.client.ResolveInvite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(invitedBy)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the current session",
	RunE: storeCommand(func(context.Context, *session.Store) error {
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow badge updates until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		rt, err := a.realtime()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := a.restore(ctx,
			session.WithRealtime(rt),
			session.WithOnChange(func(st session.State) {
				if err := printState(cmd, st); err != nil {
					a.logger.Error("print state", "error", err)
				}
			}),
		)
		if err != nil {
			return err
		}
		defer store.Close()

		if !store.State().SignedIn() {
			return fmt.Errorf("not signed in")
		}
		if err := printState(cmd, store.State()); err != nil {
			return err
		}
		if err := store.Mount(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	signUpCmd.Flags().StringVar(&emailFlag, "email", "", "email address")
	signUpCmd.Flags().StringVar(&nameFlag, "name", "", "display name")
	signUpCmd.Flags().StringVar(&avatarFlag, "avatar", "0", "avatar selector 0-3")
	signUpCmd.Flags().StringVar(&captchaFlag, "captcha", "", "Turnstile token")
	_ = signUpCmd.MarkFlagRequired("email")
	_ = signUpCmd.MarkFlagRequired("name")

	sendOTPCmd.Flags().StringVar(&emailFlag, "email", "", "email address")
	sendOTPCmd.Flags().StringVar(&captchaFlag, "captcha", "", "Turnstile token")
	_ = sendOTPCmd.MarkFlagRequired("email")
}
