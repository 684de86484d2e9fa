package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "pdfinsight",
	Short:         "Extract text from PDFs and analyze it with a generative model",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(analysesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	// A .env file is a convenience for local development; real environment
	// variables take precedence.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
