package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"psorcast/internal/config"
	"psorcast/internal/daemonrun"
	"psorcast/internal/history"
	"psorcast/internal/logging"
	"psorcast/internal/schedule"
	"psorcast/internal/timeline"
)

type commandContext struct {
	configFlag *string
	now        func() time.Time

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	store *history.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		now:        time.Now,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// openStore opens the history database once per invocation.
func (c *commandContext) openStore() (*history.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	store.SetClock(c.now)
	c.store = store
	return store, nil
}

func (c *commandContext) engine(ctx context.Context) (*schedule.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	snapshot, err := store.ClinicalSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	opts := schedule.Options{
		MonthlyStartWeek:     cfg.Schedule.MonthlyStartWeek,
		MonthlyIntervalWeeks: cfg.Schedule.MonthlyIntervalWeeks,
	}
	return schedule.New(snapshot, snapshot, schedule.Clock(c.now), opts, c.loggerValue()), nil
}

func (c *commandContext) timeline() (*timeline.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	return daemonrun.NewTimeline(cfg, store, c.loggerValue())
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
