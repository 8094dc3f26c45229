package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/config"
	"mediarepo/internal/store"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
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

func (c *commandContext) baseURL() (string, error) {
	if c.apiFlag != nil {
		if flag := strings.TrimSpace(*c.apiFlag); flag != "" {
			return flag, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return api.BaseURLForBind(cfg.Paths.APIBind), nil
}

func (c *commandContext) client() (*api.Client, error) {
	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	return api.NewClient(base), nil
}

// withDaemon runs fn against the daemon API and explains how to start it when
// nothing is listening.
func (c *commandContext) withDaemon(fn func(*api.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	err = fn(client)
	if errors.Is(err, api.ErrDaemonUnavailable) {
		return fmt.Errorf("%w; start it with `mediarepo serve`", err)
	}
	return err
}

// withSource prefers the daemon and falls back to direct store access when
// the daemon is unavailable.
func (c *commandContext) withSource(cmd *cobra.Command, fn func(source) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if _, err := client.Status(cmd.Context()); err == nil {
		return fn(daemonSource{client: client})
	} else if !errors.Is(err, api.ErrDaemonUnavailable) {
		return err
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(storeSource{store: st})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
