package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/config"
	"sitegate.io/internal/obs"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	load       func(path string) (*config.Config, error)

	cfg *config.Config
	log *zap.Logger
	// revocations is nil unless Redis is configured.
	revocations auth.Revocations
	redis       *redis.Client
}

// newRootCmd builds the command tree. A nil load uses config.Load.
func newRootCmd(load func(string) (*config.Config, error)) *cobra.Command {
	if load == nil {
		load = config.Load
	}
	c := &cli{load: load}

	root := &cobra.Command{
		Use:           "sitegatectl",
		Short:         "Operator tool for the client and subcontractor portal sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = obs.Init(obs.LogConfig{Env: cfg.Env, Level: cfg.Log.Level, Service: "sitegatectl"})
			if cfg.Redis.Addr != "" {
				c.redis = redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				c.revocations = auth.NewRedisRevocations(c.redis)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.redis != nil {
				return c.redis.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the YAML config (default $SITEGATE_CONFIG)")

	root.AddCommand(newTokenCmd(c), newResolveCmd(c))
	return root
}

// portal returns the configuration of the named portal.
func (c *cli) portal(name string) (config.PortalConfig, error) {
	for _, pc := range c.cfg.Portals() {
		if pc.Name == name {
			return pc, nil
		}
	}
	return config.PortalConfig{}, fmt.Errorf("unknown portal %q (want %s or %s)", name, config.PortalClient, config.PortalSubcontractor)
}

func (c *cli) codec(name string) (*auth.Codec, error) {
	pc, err := c.portal(name)
	if err != nil {
		return nil, err
	}
	var opts []auth.CodecOption
	if c.revocations != nil {
		opts = append(opts, auth.WithRevocations(c.revocations))
	}
	return auth.NewCodec(pc.TokenAudience(), opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
