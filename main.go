package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskterm/taskterm/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "taskterm",
	Short: "Terminal and sandbox gateway for cluster tasks",
	Long:  "taskterm lets authorized operators open interactive terminals inside running cluster tasks and browse their sandbox files",
}

func init() {
	rootCmd.AddCommand(cmd.ServerCmd)
	rootCmd.AddCommand(cmd.TokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
