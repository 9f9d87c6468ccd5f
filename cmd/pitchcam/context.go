package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pitchcam/internal/config"
	"pitchcam/internal/nodeclient"
	"pitchcam/internal/station"
)

const defaultRequestTimeout = 30 * time.Second

type commandContext struct {
	configFlag  *string
	nodeFlag    *string
	stationFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag, nodeFlag, stationFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		nodeFlag:    nodeFlag,
		stationFlag: stationFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// nodeURL resolves the node a command targets: --node, else this host on
// the mesh port.
func (c *commandContext) nodeURL() string {
	if c.nodeFlag != nil {
		if value := strings.TrimSpace(*c.nodeFlag); value != "" {
			return withScheme(value)
		}
	}
	port := 8000
	if cfg := c.configValue(); cfg != nil && cfg.Mesh.Port > 0 {
		port = cfg.Mesh.Port
	}
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// stationURL resolves --station, else the loopback form of station.bind.
func (c *commandContext) stationURL() string {
	if c.stationFlag != nil {
		if value := strings.TrimSpace(*c.stationFlag); value != "" {
			return withScheme(value)
		}
	}
	port := "8080"
	if cfg := c.configValue(); cfg != nil {
		if _, p, err := net.SplitHostPort(cfg.Station.Bind); err == nil && p != "" && p != "0" {
			port = p
		}
	}
	return "http://127.0.0.1:" + port
}

func (c *commandContext) token() string {
	if cfg := c.configValue(); cfg != nil {
		return cfg.API.Token
	}
	return ""
}

func (c *commandContext) nodeClient() *nodeclient.Client {
	return nodeclient.New(c.nodeURL(), nodeclient.Options{Token: c.token()})
}

func (c *commandContext) stationClient() *station.Client {
	return station.NewClient(c.stationURL(), nodeclient.Options{Token: c.token()})
}

// requestContext bounds a single CLI round trip.
func requestContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func withScheme(value string) string {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	return "http://" + value
}

// wrapConnError turns a refused or unreachable daemon into an actionable hint.
func wrapConnError(err error, target, role string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to %s at %s: connection refused; start it with `pitchcam %s run`", role, target, role)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("connect to %s at %s: timed out", role, target)
	default:
		return err
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

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
