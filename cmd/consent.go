package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomas/secureface/internal/consent"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Manage the consent record for local face processing",
}

var consentGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Record consent to local face processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()
		if err := consent.Save(a.consentPath(), true); err != nil {
			return err
		}
		fmt.Println("Consent recorded")
		return nil
	},
}

var consentRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke consent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()
		if err := consent.Save(a.consentPath(), false); err != nil {
			return err
		}
		fmt.Println("Consent revoked")
		return nil
	},
}

var consentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current consent state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		rec, err := consent.Load(a.consentPath())
		if err != nil {
			return err
		}
		if rec.Consented {
			fmt.Printf("Consent granted at %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("No consent on record")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consentCmd)
	consentCmd.AddCommand(consentGrantCmd)
	consentCmd.AddCommand(consentRevokeCmd)
	consentCmd.AddCommand(consentStatusCmd)
}
