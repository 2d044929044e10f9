package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "secureface",
	Short: "Encrypted face template store and matcher",
	Long: `SecureFace enrolls face embeddings into an encrypted, integrity-checked
local store and answers "who is this embedding" queries with a calibrated
confidence score. Detection and embedding extraction are delegated to an
external detect-and-embed service.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
