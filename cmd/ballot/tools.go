package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ballotkey.org/internal/biometric"
	"ballotkey.org/internal/config"
	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/migrate"
)

func init() {
	passcodeCmd.AddCommand(passcodeHashCmd)
	storeCmd.AddCommand(storeMigrateCmd, storeStatusCmd)
	rootCmd.AddCommand(passcodeCmd, storeCmd, versionCmd)
}

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Device passcode enrollment",
}

var passcodeHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a device passcode for " + config.EnvPasscodeHash,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		first, err := promptSecret(cmd, "New passcode")
		if err != nil {
			return err
		}
		second, err := promptSecret(cmd, "Repeat passcode")
		if err != nil {
			return err
		}
		if first != second {
			return errors.New("passcodes do not match")
		}
		hash, err := biometric.HashPasscode(first)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s='%s'\n", config.EnvPasscodeHash, hash)
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Credential store maintenance",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the credential store schema (sqlite and pgx drivers)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreDriver != config.DriverSQLite && cfg.StoreDriver != config.DriverPgx {
			return fmt.Errorf("driver %s has no schema", cfg.StoreDriver)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Opening a SQL store applies pending migrations.
		s, err := credstore.OpenSQL(cmd.Context(), cfg.StoreDriver, cfg.Store, cfg.StorePassphrase)
		if err != nil {
			return err
		}
		defer s.Close()
		applied, err := migrate.NewManager(s.DB(), credstore.Migrations()).Status(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials this device holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "driver\t%s\n", cfg.StoreDriver)
		if f, ok := store.(*credstore.File); ok {
			fmt.Fprintf(w, "path\t%s\n", f.Path())
		}
		for _, key := range credstore.Keys {
			_, err := store.Get(cmd.Context(), key)
			switch {
			case err == nil:
				fmt.Fprintf(w, "%s\tpresent\n", key)
			case errors.Is(err, credstore.ErrNotFound):
				fmt.Fprintf(w, "%s\tabsent\n", key)
			default:
				fmt.Fprintf(w, "%s\tunreadable (%v)\n", key, err)
			}
		}
		if s, ok := store.(*credstore.SQL); ok {
			pending, err := migrate.NewManager(s.DB(), credstore.Migrations()).Pending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "pending migrations\t%d\n", len(pending))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ballot %s (%s)\n", version, commit)
	},
}
