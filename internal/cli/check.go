package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callwatch/internal/intercept"
	"github.com/ppiankov/callwatch/internal/policy"
)

const policyPath = "/api/v1/policy/evaluate"

// errDenied makes check exit non-zero on a Deny decision.
var errDenied = errors.New("call denied by policy")

var (
	checkURL       string
	checkMethod    string
	checkHeaders   []string
	checkPolicyURL string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkURL, "url", "", "URL of the call to check (required)")
	checkCmd.Flags().StringVar(&checkMethod, "method", "GET", "HTTP method")
	checkCmd.Flags().StringArrayVar(&checkHeaders, "header", nil, "Request header as key=value (repeatable)")
	checkCmd.Flags().StringVar(&checkPolicyURL, "policy-url", "", "Policy endpoint (default interceptor.policy_url, then base_url"+policyPath+")")
	checkCmd.MarkFlagRequired("url")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask the policy endpoint whether a call would be allowed",
	Long: "Builds the same request descriptor the interceptor sends and prints the\n" +
		"policy decision. Exit code 0 on Allow, 1 on Deny or error.",
	RunE: runCheck,
}

func parseHeaders(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q: want key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func resolvePolicyURL() string {
	switch {
	case checkPolicyURL != "":
		return checkPolicyURL
	case cfg.Interceptor.PolicyURL != "":
		return cfg.Interceptor.PolicyURL
	default:
		return strings.TrimRight(cfg.BaseURL, "/") + policyPath
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	headers, err := parseHeaders(checkHeaders)
	if err != nil {
		return err
	}
	desc := intercept.Describe(strings.ToUpper(checkMethod), intercept.URLString(checkURL), intercept.HeaderMap(headers), nil)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := policy.NewEvaluator(resolvePolicyURL(), nil, cfg.APIKey).Evaluate(ctx, desc)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(map[string]any{
		"method":   desc.Method,
		"url":      desc.URL,
		"decision": res.Decision,
		"reasons":  res.Reasons,
		"rule_id":  res.RuleID,
	}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !res.Allowed() {
		return errDenied
	}
	return nil
}
