// Package command provides the root command of the barrier CLI.
package command

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/keboola/go-barrier/internal/pkg/env"
	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/barrier"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/config"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/dependencies"
	"github.com/keboola/go-barrier/internal/pkg/service/common/configmap"
	"github.com/keboola/go-barrier/internal/pkg/service/common/servicectx"
)

const (
	ServiceName    = "barrier"
	dumpConfigFlag = "dump-config"
	configFileFlag = "config-file"
)

const longDescription = `Waits until the configured count of participants reached the barrier.

Each participant registers an ephemeral node in etcd and waits for the others.
The participant with the smallest node name is the leader, it aggregates values of all participants.
The command fails if a participant disappears or no new participant arrives within the idle timeout.

Each flag can be set by an ENV with the "BARRIER_" prefix, for example BARRIER_IDLE_TIMEOUT.
ENVs are also loaded from ".env.local" and ".env" files in the working directory.`

// New creates the root command.
// The osEnvs are merged with ENVs from the .env files, they have the priority.
func New(osEnvs *env.Map, stdout, stderr io.Writer) *cobra.Command {
	cfg := config.New()

	cmd := &cobra.Command{
		Use:           ServiceName,
		Short:         "Distributed rendezvous barrier",
		Long:          longDescription,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	configmap.MustGenerateFlags(cmd.Flags(), &cfg)
	cmd.Flags().StringSlice(configFileFlag, nil, "YAML or JSON config files, keys match the configuration dump.")
	cmd.Flags().Bool(dumpConfigFlag, false, "Print the effective configuration and exit.")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// ENVs from the files are logged before the configuration is known
		bootstrapLogger := log.NewServiceLogger(stderr, log.LogFormatConsole, false)
		envs := env.LoadDotEnv(ctx, bootstrapLogger, osEnvs, []string{"."})

		if cfg.Barrier.Repository == "" {
			cfg.Barrier.Repository = envs.Get(config.RepositoryEnv)
		}

		configFiles, err := cmd.Flags().GetStringSlice(configFileFlag)
		if err != nil {
			return err
		}

		spec := configmap.BindSpec{Flags: cmd.Flags(), Envs: envs, EnvNaming: env.NewNamingConvention(), ConfigFiles: configFiles}
		if _, err := configmap.Bind(ctx, spec, &cfg); err != nil {
			return err
		}

		if dump, _ := cmd.Flags().GetBool(dumpConfigFlag); dump {
			out, err := configmap.DumpYAML(cfg)
			if err != nil {
				return err
			}
			_, err = stdout.Write(out)
			return err
		}

		return Run(ctx, cfg, stdout)
	}

	return cmd
}

// Run enters the barrier and waits the exit delay after the barrier passed.
// The coordination session and the connection are released before return, also on failure.
func Run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The format has been validated
	format, _ := log.NewLogFormat(cfg.LogFormat)
	logger := log.NewServiceLogger(stdout, format, cfg.DebugLog)

	proc, err := servicectx.New(ctx, cancel, logger)
	if err != nil {
		return err
	}

	d, err := dependencies.NewServiceScope(ctx, cfg, proc, logger, stdout)
	if err != nil {
		proc.Shutdown(err)
		return proc.WaitForShutdown()
	}

	proc.Add(func(ctx context.Context, shutdown servicectx.ShutdownFn) {
		if _, err := barrier.Enter(ctx, d, cfg.Barrier); err != nil {
			shutdown(err)
			return
		}

		// Participants which are still waiting must see the node
		logger.Infof(ctx, `barrier passed, waiting %s before exit`, cfg.Barrier.ExitDelay)
		select {
		case <-d.Clock().After(cfg.Barrier.ExitDelay):
			shutdown(nil)
		case <-ctx.Done():
		}
	})

	return proc.WaitForShutdown()
}
