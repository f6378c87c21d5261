package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/aquasecurity/layerscan/pkg/clamav"
	"github.com/aquasecurity/layerscan/pkg/etc"
)

// ExitError requests a specific exit code without printing an error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// globalOptions are shared by all commands. Defaults come from the
// environment and are overridden by flags.
type globalOptions struct {
	config    etc.Config
	errWriter io.Writer
	logger    logr.Logger
}

func (o *globalOptions) setupLogger() {
	log.SetLogger(zap.New(zap.UseDevMode(o.config.LogDevMode), zap.WriteTo(o.errWriter)))
	o.logger = log.Log.WithName("layerscan")
}

func (o *globalOptions) clamAVClient() (*clamav.Client, error) {
	url, err := o.config.ClamAV.GetURL()
	if err != nil {
		return nil, fmt.Errorf("%w (or use --clamav-url)", err)
	}
	return clamav.NewClient(url, clamav.WithLogger(o.logger))
}

func NewRootCmd(buildInfo etc.BuildInfo, config etc.Config, args []string, outWriter io.Writer, errWriter io.Writer) *cobra.Command {
	opts := &globalOptions{config: config, errWriter: errWriter, logger: logr.Discard()}

	rootCmd := &cobra.Command{
		Use:           "layerscan",
		Short:         "Malware scanner for container image layers",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.setupLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.config.ClamAV.URL, "clamav-url", config.ClamAV.URL,
		"Base URL of the ClamAV scan service (LAYERSCAN_CLAMAV_URL)")
	rootCmd.PersistentFlags().BoolVar(&opts.config.LogDevMode, "log-dev-mode", config.LogDevMode,
		"Log in human readable development mode (LAYERSCAN_LOG_DEV_MODE)")

	rootCmd.AddCommand(NewVersionCmd(buildInfo, outWriter))
	rootCmd.AddCommand(NewScanCmd(opts, outWriter))
	rootCmd.AddCommand(NewInfoCmd(opts, outWriter))
	rootCmd.AddCommand(NewHealthCmd(opts, outWriter))
	rootCmd.AddCommand(NewMonitorCmd(opts, outWriter))

	rootCmd.SetArgs(args[1:])
	rootCmd.SetOut(outWriter)
	rootCmd.SetErr(errWriter)

	return rootCmd
}

// Run is the entry point of the layerscan CLI. It runs the specified
// command based on the specified args.
func Run(buildInfo etc.BuildInfo, args []string, outWriter io.Writer, errWriter io.Writer) error {
	initFlags()

	config, err := etc.GetConfig()
	if err != nil {
		return fmt.Errorf("getting config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd(buildInfo, config, args, outWriter, errWriter).ExecuteContext(ctx)
}

func initFlags() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	// Hide all klog flags except for -v
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if f.Name != "v" {
			pflag.Lookup(f.Name).Hidden = true
		}
	})
}
