// Package monitor wires the refresh coordinator and its consumers into a
// running service.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/omelnyk/svitlo/internal/api"
	"github.com/omelnyk/svitlo/internal/collector"
	"github.com/omelnyk/svitlo/internal/coordinator"
	"github.com/omelnyk/svitlo/internal/health"
	"github.com/omelnyk/svitlo/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "fetches outage schedules and serves them to the entity layer",
	RunE:  run,
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	m, err := New(viper.GetViper(), prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("svitlo monitor starting", "version", cmd.Root().Version)
	defer logger.Info("svitlo monitor stopped")
	return m.Run(ctx)
}

func New(cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	loc, err := time.LoadLocation(cfg.GetString("provider.timezone"))
	if err != nil {
		return nil, fmt.Errorf("provider timezone: %w", err)
	}

	name := cfg.GetString("provider.name")
	requestMetrics := provider.NewRequestMetrics("svitlo", "monitor", prometheus.Labels{"provider": name})
	registry.MustRegister(requestMetrics)

	client, err := provider.New(name, cfg.GetString("provider.url"), cfg.GetDuration("provider.timeout"), loc, requestMetrics)
	if err != nil {
		return nil, err
	}

	// Do we have group aliases?
	aliases, err := maybeLoadAliases(filepath.Join(filepath.Dir(cfg.ConfigFileUsed()), "groups.yaml"))
	if err != nil {
		return nil, err
	}

	return taskmanager.New(makeTasks(cfg, client, aliases, registry, logger)...), nil
}

// maybeLoadAliases loads the optional groups.yaml file mapping group IDs to
// display names.
func maybeLoadAliases(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var aliases map[string]string
	if err = yaml.NewDecoder(f).Decode(&aliases); err != nil {
		return nil, fmt.Errorf("groups.yaml: %w", err)
	}
	return aliases, nil
}

func makeTasks(cfg *viper.Viper, client provider.Client, aliases map[string]string, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	// Coordinator
	c := coordinator.New(client, coordinator.Config{
		Groups:     cfg.GetStringSlice("groups"),
		Interval:   cfg.GetDuration("poller.interval"),
		Retention:  cfg.GetDuration("poller.retention"),
		MaxBackoff: cfg.GetDuration("poller.max-backoff"),
	}, l.With("component", "coordinator"))
	tasks = append(tasks, c)

	// Collector
	coll := collector.New(c, l.With("component", "collector"))
	registry.MustRegister(coll)
	tasks = append(tasks, coll)

	// Prometheus server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health endpoint
	h := health.New(c, l.With("component", "health"))
	tasks = append(tasks, h)
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), mux))

	// Entity API
	a := api.New(c, aliases, l.With("component", "api"))
	tasks = append(tasks, httpserver.New(cfg.GetString("api.addr"), a))

	return tasks
}
