package store

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// MonitorFile is the on-disk layout of a monitors file
type MonitorFile struct {
	Monitors []MonitorSpec `yaml:"monitors"`
}

// MonitorSpec is one monitor entry of a monitors file
type MonitorSpec struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	Target             string            `yaml:"target"`
	Protocol           string            `yaml:"protocol"`
	Port               *int64            `yaml:"port"`
	Interval           int               `yaml:"interval"`
	Timeout            *int64            `yaml:"timeout"`
	Method             string            `yaml:"method"`
	ExpectedStatusCode *int64            `yaml:"expected_status_code"`
	ContentMatch       string            `yaml:"content_match"`
	RetryCount         *int64            `yaml:"retry_count"`
	Headers            map[string]string `yaml:"headers"`
	PingCount          *int64            `yaml:"ping_count"`
	Disabled           bool              `yaml:"disabled"`
	Notify             *NotifySpec       `yaml:"notify"`
}

// NotifySpec configures alerts for one monitor in a monitors file
type NotifySpec struct {
	WebhookURL string `yaml:"webhook_url"`
	Provider   string `yaml:"provider"`
	Enabled    bool   `yaml:"enabled"`
	Watching   bool   `yaml:"watching"`
}

// InvalidEntriesError lists monitors file entries that could not be decoded.
// It is returned together with the entries that could.
type InvalidEntriesError struct {
	Errs []error
}

func (e *InvalidEntriesError) Error() string {
	return multierr.Combine(e.Errs...).Error()
}

func (e *InvalidEntriesError) Unwrap() []error {
	return e.Errs
}

// entriesErr returns nil for an empty list so callers can return it directly
func entriesErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &InvalidEntriesError{Errs: errs}
}

// FileRepository reads monitor definitions from a YAML file on every call,
// so edits take effect on the next cycle.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) load() (*MonitorFile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read monitors file: %w", err)
	}
	var f MonitorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse monitors file %s: %w", r.path, err)
	}
	return &f, nil
}

// ListMonitors returns the enabled monitors. Entries that cannot be decoded
// are reported through an *InvalidEntriesError next to the valid ones.
func (r *FileRepository) ListMonitors(_ context.Context) ([]models.Monitor, error) {
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Monitor, 0, len(f.Monitors))
	var errs []error
	for i, entry := range f.Monitors {
		if entry.Disabled {
			continue
		}
		m, err := entry.toMonitor()
		if err != nil {
			errs = append(errs, entryError(i, err))
			continue
		}
		out = append(out, m)
	}
	return out, entriesErr(errs)
}

// NotificationConfigs returns the notify blocks of every monitor that has one
func (r *FileRepository) NotificationConfigs(_ context.Context) ([]models.NotificationConfig, error) {
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	var out []models.NotificationConfig
	for _, entry := range f.Monitors {
		if entry.Notify == nil {
			continue
		}
		id, err := entry.monitorID()
		if err != nil {
			// no monitor can carry this id; ListMonitors reports the entry
			continue
		}
		out = append(out, models.NotificationConfig{
			MonitorID:  id,
			WebhookURL: entry.Notify.WebhookURL,
			Provider:   models.Provider(entry.Notify.Provider),
			Enabled:    entry.Notify.Enabled,
			Watching:   entry.Notify.Watching,
		})
	}
	return out, nil
}

// GetConfig looks up the notify block of one monitor
func (r *FileRepository) GetConfig(ctx context.Context, monitorID uuid.UUID) (*models.NotificationConfig, error) {
	configs, err := r.NotificationConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.MonitorID == monitorID {
			if cfg.Provider == "" {
				cfg.Provider = models.ProviderDiscord
			}
			return &cfg, nil
		}
	}
	return nil, nil
}

// AllMonitors returns every monitor including disabled ones, with the same
// error contract as ListMonitors
func (r *FileRepository) AllMonitors(_ context.Context) ([]models.Monitor, error) {
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Monitor, 0, len(f.Monitors))
	var errs []error
	for i, entry := range f.Monitors {
		m, err := entry.toMonitor()
		if err != nil {
			errs = append(errs, entryError(i, err))
			continue
		}
		out = append(out, m)
	}
	return out, entriesErr(errs)
}

func entryError(i int, err error) error {
	return fmt.Errorf("monitor #%d: %w: %w", i+1, models.ErrInvalidMonitor, err)
}

// monitorID parses the explicit id or derives a stable one from the name
func (s MonitorSpec) monitorID() (uuid.UUID, error) {
	if s.ID != "" {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid id %q: %w", s.ID, err)
		}
		return id, nil
	}
	if s.Name == "" {
		return uuid.Nil, fmt.Errorf("monitor needs an id or a name")
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kabomba-probe:"+s.Name)), nil
}

func (s MonitorSpec) toMonitor() (models.Monitor, error) {
	id, err := s.monitorID()
	if err != nil {
		return models.Monitor{}, err
	}
	m := models.Monitor{
		ID:                 id,
		Name:               s.Name,
		Target:             s.Target,
		Protocol:           models.Protocol(s.Protocol),
		Port:               null.IntFromPtr(s.Port),
		CheckInterval:      s.Interval,
		Timeout:            null.IntFromPtr(s.Timeout),
		HTTPMethod:         null.NewString(s.Method, s.Method != ""),
		ExpectedStatusCode: null.IntFromPtr(s.ExpectedStatusCode),
		ContentMatch:       null.NewString(s.ContentMatch, s.ContentMatch != ""),
		RetryCount:         null.IntFromPtr(s.RetryCount),
		CustomHeaders:      s.Headers,
		PingCount:          null.IntFromPtr(s.PingCount),
		Active:             !s.Disabled,
	}
	if m.CheckInterval == 0 {
		m.CheckInterval = 60
	}
	return m, nil
}
