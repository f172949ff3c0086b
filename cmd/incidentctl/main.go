package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "incidentctl",
	Short: "Incident Desk administration",
	Long:  `Operational commands for the Incident Desk API database.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	superAdminCmd.Flags().StringVar(&superAdminOpts.name, "name", "Super Admin", "display name")
	superAdminCmd.Flags().StringVar(&superAdminOpts.email, "email", "", "login email (required)")
	superAdminCmd.Flags().StringVar(&superAdminOpts.password, "password", "", "password; falls back to SUPERADMIN_PASSWORD")
	superAdminCmd.Flags().BoolVar(&superAdminOpts.promote, "promote", false, "promote an existing account instead of failing")
	_ = superAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(superAdminCmd)
}
