package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"go.uber.org/zap"
)

type registerRequest struct {
	Name      string           `json:"name"`
	Framework string           `json:"framework"`
	Metadata  registerMetadata `json:"metadata"`
}

type registerMetadata struct {
	SDKVersion     string `json:"sdk_version"`
	Runtime        string `json:"runtime"`
	RuntimeVersion string `json:"runtime_version"`
}

// Registration is the collector's answer to a successful registration.
type Registration struct {
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// RegisterAgent registers this process as an agent and keeps the returned
// identifier for enriching later events.
func (c *Client) RegisterAgent(ctx context.Context, name, framework string) (string, error) {
	body, err := json.Marshal(registerRequest{
		Name:      name,
		Framework: framework,
		Metadata: registerMetadata{
			SDKVersion:     Version,
			Runtime:        "go",
			RuntimeVersion: runtime.Version(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("callwatch: encode registration: %w", err)
	}

	resp, err := c.post(ctx, c.cfg.BaseURL+registerPath, body)
	if err != nil {
		return "", fmt.Errorf("callwatch: register agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &RegistrationError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	var reg Registration
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return "", fmt.Errorf("callwatch: decode registration: %w", err)
	}

	c.mu.Lock()
	c.agentID = reg.AgentID
	c.mu.Unlock()

	c.logger.Info("agent registered",
		zap.String("agent_id", reg.AgentID),
		zap.String("name", name),
		zap.String("framework", framework),
	)
	return reg.AgentID, nil
}
