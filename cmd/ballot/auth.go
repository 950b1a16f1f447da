package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ballotkey.org/internal/voting"
)

func init() {
	loginCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("name", "", "full name")
	registerCmd.Flags().String("email", "", "account email")
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, statusCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		var err error
		if email == "" {
			if email, err = promptLine(cmd, "Email"); err != nil {
				return err
			}
		}
		password, err := promptSecret(cmd, "Password")
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			r := a.facade.Login(cmd.Context(), voting.Credentials{Email: email, Password: password})
			if err := check(r); err != nil {
				return err
			}
			printGreeting(cmd, a.facade.State())
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var reg voting.Registration
		var err error
		reg.Name, _ = cmd.Flags().GetString("name")
		reg.Email, _ = cmd.Flags().GetString("email")
		if reg.Name == "" {
			if reg.Name, err = promptLine(cmd, "Name"); err != nil {
				return err
			}
		}
		if reg.Email == "" {
			if reg.Email, err = promptLine(cmd, "Email"); err != nil {
				return err
			}
		}
		if reg.Password, err = promptSecret(cmd, "Password"); err != nil {
			return err
		}
		if reg.PasswordConfirmation, err = promptSecret(cmd, "Confirm password"); err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			if err := check(a.facade.Register(cmd.Context(), reg)); err != nil {
				return err
			}
			printGreeting(cmd, a.facade.State())
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove every stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := check(a.facade.Logout(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, voter and vote state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if !a.boot.OK {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", a.boot.Error)
			}
			snap := a.facade.State()
			if snap.Session == voting.Authenticated && snap.VoterStatus == nil {
				if r := a.facade.RefreshVoterStatus(cmd.Context()); !r.OK {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", r.Error)
				}
			}
			printStatus(cmd, a.facade.State(), a.facade.CheckBiometricSupport(cmd.Context()).Data.Available)
			return nil
		})
	},
}

func printGreeting(cmd *cobra.Command, snap voting.Snapshot) {
	if snap.User == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>.\n", snap.User.Name, snap.User.Email)
	if snap.VoterStatus == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Voter status is unavailable right now; run `ballot status` to retry.")
	}
}

func printStatus(cmd *cobra.Command, snap voting.Snapshot, biometricAvailable bool) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "session\t%s\n", snap.Session)
	if snap.User != nil {
		fmt.Fprintf(w, "user\t%s <%s> (id %d)\n", snap.User.Name, snap.User.Email, snap.User.ID)
	}
	switch {
	case snap.Session != voting.Authenticated:
	case snap.VoterStatus == nil:
		fmt.Fprintf(w, "voter\tunknown\n")
	default:
		fmt.Fprintf(w, "voter\t%s\n", snap.Voter)
		fmt.Fprintf(w, "vote\t%s\n", snap.Vote)
		if id := snap.VoterStatus.VotedCandidateID; id != nil {
			fmt.Fprintf(w, "voted for\tcandidate %d\n", *id)
		}
	}
	fmt.Fprintf(w, "device credential\t%s\n", yesNo(snap.HasBiometricToken))
	fmt.Fprintf(w, "biometric\t%s\n", yesNo(biometricAvailable))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
