package alert

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/logging"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; Dispatch on a nil Dispatcher is a no-op.
func NewDispatcher(configs []AlertConfig, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs, logger: logging.OrNop(logger).Named("alert")}
}

// Dispatch sends the event to every webhook whose Events list matches its
// decision or type. Sends run in their own goroutines.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		go func(cfg AlertConfig) {
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("alert webhook failed",
					zap.String("url", cfg.URL),
					zap.String("decision", event.Decision),
					zap.Error(err),
				)
			}
		}(cfg)
	}
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if strings.EqualFold(e, event.Decision) {
			return true
		}
		if event.Type != "" && strings.EqualFold(e, event.Type) {
			return true
		}
	}
	return false
}
