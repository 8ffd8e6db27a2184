package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dosebot",
	Short: "Medication dose reminders over Telegram and HTTP",
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newRescheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
