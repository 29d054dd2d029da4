package main

import (
	"log"
	"os"

	"github.com/BartekS5/nyc-taxi-etl/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	envFile := os.Getenv("TAXI_ETL_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file found, using system environment variables", envFile)
	}

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
