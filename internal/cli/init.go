package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callwatch/internal/config"
	"github.com/ppiankov/callwatch/internal/policy"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write config files into")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter callwatch.yaml and rules.yaml",
	RunE:  runInit,
}

const defaultConfigYAML = `# callwatch configuration. Every key can be overridden from the
# environment: CALLWATCH_API_KEY, CALLWATCH_INTERCEPTOR__ENFORCEMENT, ...
api_key: cw_dev_local
base_url: http://localhost:8080
flush_interval: 5s
batch_size: 100
debug: false
log_level: info

interceptor:
  enforcement: log          # log | warn | block
  policy_url: http://localhost:8080/api/v1/policy/evaluate
  exclude_patterns:
    - "^http://localhost:8080/"

collector:
  addr: ":8080"
  db: callwatch.db
  rules: rules.yaml
`

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(initDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	files := []struct {
		name, content string
	}{
		{config.DefaultFile, defaultConfigYAML},
		{"rules.yaml", policy.DefaultRulesYAML()},
	}
	for _, f := range files {
		path := filepath.Join(initDir, f.name)
		wrote, err := writeIfMissing(path, f.content)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Exists  %s (use --force to overwrite)\n", path)
		}
	}
	return nil
}

func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
