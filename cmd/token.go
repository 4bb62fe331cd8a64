package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/taskterm/taskterm/pkg/authz"
	"github.com/taskterm/taskterm/pkg/config"
)

var (
	tokenConfig string
	tokenTaskID string
	tokenBy     string
)

// TokenCmd mints a delegation token from the command line, using the same
// signing secret as the server. Useful for granting one-off access
// without going through the HTTP API.
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a task delegation token",
	RunE:  runToken,
}

func init() {
	TokenCmd.Flags().StringVarP(&tokenConfig, "config", "c", "config.json", "Configuration file path")
	TokenCmd.Flags().StringVarP(&tokenTaskID, "task-id", "t", "", "Task ID the token grants access to")
	TokenCmd.Flags().StringVar(&tokenBy, "delegated-by", "", "Principal recorded as the grantor")
	if err := TokenCmd.MarkFlagRequired("task-id"); err != nil {
		log.Printf("Failed to mark task-id flag required: %v", err)
	}
}

func runToken(command *cobra.Command, args []string) error {
	configData, err := config.LoadConfig(tokenConfig)
	if err != nil {
		return fmt.Errorf("load config %s: %w", tokenConfig, err)
	}

	tokens := authz.NewTokenService(configData.Auth.Delegation)
	if tokens == nil {
		return fmt.Errorf("no delegation secret configured in %s", tokenConfig)
	}

	token, err := tokens.Issue(tokenTaskID, tokenBy)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
