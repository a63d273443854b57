package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callwatch/internal/dispatch"
)

const commandTimeout = 30 * time.Second

var (
	registerName      string
	registerFramework string
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVar(&registerName, "name", "", "Agent name (required)")
	registerCmd.Flags().StringVar(&registerFramework, "framework", "custom", "Agent framework")
	registerCmd.MarkFlagRequired("name")
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an agent with the collector and print its id",
	RunE:  runRegister,
}

// newClient builds a dispatch client from the loaded config.
func newClient() (*dispatch.Client, error) {
	return dispatch.New(cfg.Dispatch(), dispatch.WithLogger(newLogger()))
}

func runRegister(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	defer client.Close(ctx)

	id, err := client.RegisterAgent(ctx, registerName, registerFramework)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	out, _ := json.MarshalIndent(map[string]string{
		"agent_id":  id,
		"name":      registerName,
		"framework": registerFramework,
	}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
