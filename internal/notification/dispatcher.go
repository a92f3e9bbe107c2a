package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// Dispatcher decides whether a transition is delivered and hands it to a transport
type Dispatcher struct {
	configs ConfigRepository
	log     *zap.Logger
	limiter *targetLimiter

	discord Transport
	slack   Transport
	webhook Transport
	teams   Transport
	ntfy    Transport
}

// Option customizes a Dispatcher
type Option func(*Dispatcher)

// WithTransport replaces the transport used for provider
func WithTransport(provider models.Provider, t Transport) Option {
	return func(d *Dispatcher) {
		switch provider {
		case models.ProviderDiscord:
			d.discord = t
		case models.ProviderSlack:
			d.slack = t
		case models.ProviderWebhook:
			d.webhook = t
		case models.ProviderTeams:
			d.teams = t
		case models.ProviderNtfy:
			d.ntfy = t
		}
	}
}

// WithRatePerMinute caps outbound sends per target; zero disables the cap
func WithRatePerMinute(n int) Option {
	return func(d *Dispatcher) {
		d.limiter = newTargetLimiter(n)
	}
}

// NewDispatcher creates a dispatcher whose built-in transports share client
func NewDispatcher(configs ConfigRepository, client *http.Client, log *zap.Logger, opts ...Option) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	d := &Dispatcher{
		configs: configs,
		log:     log,
		discord: NewDiscordTransport(client),
		slack:   NewSlackTransport(client),
		webhook: NewWebhookTransport(client),
		teams:   NewTeamsTransport(client),
		ntfy:    NewNtfyTransport(client),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers ev when the monitor has an enabled target and the new
// status is down. Missing or disabled configuration is not an error.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) (Result, error) {
	cfg, err := d.configs.GetConfig(ctx, ev.MonitorID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get notification config: %w", err)
	}
	if cfg == nil {
		return Result{Reason: "no notification config"}, nil
	}

	res := Result{Watching: cfg.Watching}
	target := strings.TrimSpace(cfg.WebhookURL)
	switch {
	case !cfg.Enabled:
		res.Reason = "notifications disabled"
		return res, nil
	case target == "":
		res.Reason = "no notification target"
		return res, nil
	case ev.Status != models.StatusDown:
		res.Reason = "monitor is up"
		return res, nil
	}

	transport, err := d.transportFor(cfg.Provider)
	if err != nil {
		return res, err
	}
	if !d.limiter.Allow(target) {
		return res, fmt.Errorf("send %s notification: %w", providerName(cfg.Provider), ErrRateLimited)
	}

	if err := transport.Send(ctx, target, NewMessage(ev)); err != nil {
		d.log.Warn("notification_failed",
			zap.String("monitor_id", ev.MonitorID.String()),
			zap.String("provider", providerName(cfg.Provider)),
			zap.Error(err))
		return res, fmt.Errorf("send %s notification: %w", providerName(cfg.Provider), err)
	}

	d.log.Info("notification_sent",
		zap.String("monitor_id", ev.MonitorID.String()),
		zap.String("monitor", ev.MonitorName),
		zap.String("provider", providerName(cfg.Provider)))
	res.Sent = true
	return res, nil
}

func (d *Dispatcher) transportFor(p models.Provider) (Transport, error) {
	switch p {
	case models.ProviderDiscord, "":
		return d.discord, nil
	case models.ProviderSlack:
		return d.slack, nil
	case models.ProviderWebhook:
		return d.webhook, nil
	case models.ProviderTeams:
		return d.teams, nil
	case models.ProviderNtfy:
		return d.ntfy, nil
	}
	return nil, fmt.Errorf("unknown notification provider: %s", p)
}

func providerName(p models.Provider) string {
	if p == "" {
		return string(models.ProviderDiscord)
	}
	return string(p)
}
