package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/aquasecurity/layerscan/pkg/component"
	"github.com/aquasecurity/layerscan/pkg/docker"
	"github.com/aquasecurity/layerscan/pkg/malwarereport"
	"github.com/aquasecurity/layerscan/pkg/metrics"
	"github.com/aquasecurity/layerscan/pkg/oci"
	"github.com/aquasecurity/layerscan/pkg/scan"
	"github.com/aquasecurity/layerscan/pkg/utils"
)

const (
	scanCmdShort = "Scan the OCI image resources of component descriptors for malware"
	scanCmdLong  = `Scan every resource of type ociImage declared by the given component
descriptors. Each distinct layer blob is streamed to the ClamAV scan service.

DESCRIPTOR is a YAML or JSON file with one or more component descriptor
documents, or - to read from standard input.
`
)

type scanOptions struct {
	*globalOptions
	exitCode int
	clock    clock.Clock
}

func NewScanCmd(opts *globalOptions, outWriter io.Writer) *cobra.Command {
	scanOpts := &scanOptions{globalOptions: opts, clock: clock.RealClock{}}
	config := &opts.config

	cmd := &cobra.Command{
		Use:   "scan DESCRIPTOR...",
		Short: scanCmdShort,
		Long:  scanCmdLong,
		Example: `  # Scan all resources declared by a component descriptor
  layerscan scan component-descriptor.yaml --clamav-url http://clamav:8080

  # Scan with 4 workers, stop on the first failure and print JSON
  layerscan scan component-descriptor.yaml --max-workers 4 --failure-policy FailFast -o json

  # Rescan every night and export metrics for the node exporter
  layerscan scan component-descriptor.yaml --schedule "0 2 * * *" --metrics-file /var/lib/node_exporter/layerscan.prom`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scanOpts.run(contextOf(cmd), args, outWriter)
		},
	}

	cmd.Flags().StringVarP(&config.Report.Format, outputFlag, "o", config.Report.Format,
		"Output format. One of table|json|yaml (LAYERSCAN_OUTPUT)")
	cmd.Flags().IntVar(&config.Scanner.MaxWorkers, "max-workers", config.Scanner.MaxWorkers,
		"Maximum number of resources scanned in parallel (LAYERSCAN_MAX_WORKERS)")
	cmd.Flags().DurationVar(&config.ClamAV.ScanTimeout, "scan-timeout", config.ClamAV.ScanTimeout,
		"Timeout for scanning one layer blob (LAYERSCAN_SCAN_TIMEOUT)")
	cmd.Flags().DurationVar(&config.Scanner.ResourceTimeout, "resource-timeout", config.Scanner.ResourceTimeout,
		"Timeout for scanning one resource, 0 means no timeout (LAYERSCAN_RESOURCE_TIMEOUT)")
	cmd.Flags().StringVar(&config.Scanner.FailurePolicy, "failure-policy", config.Scanner.FailurePolicy,
		"What to do when a resource cannot be scanned. One of ReportInline|FailFast (LAYERSCAN_FAILURE_POLICY)")
	cmd.Flags().BoolVar(&config.Scanner.ScanFlattenedImage, "flattened", config.Scanner.ScanFlattenedImage,
		"Also scan the flattened image filesystem (LAYERSCAN_SCAN_FLATTENED_IMAGE)")
	cmd.Flags().StringVar(&config.Registry.DockerConfig, "docker-config", config.Registry.DockerConfig,
		"Path to a Docker config.json with registry credentials (LAYERSCAN_DOCKER_CONFIG)")
	cmd.Flags().BoolVar(&config.Registry.Insecure, "insecure-registry", config.Registry.Insecure,
		"Allow plain HTTP registries (LAYERSCAN_INSECURE_REGISTRY)")
	cmd.Flags().StringVar(&config.Report.Schedule, "schedule", config.Report.Schedule,
		"Cron expression to rescan on, empty means scan once (LAYERSCAN_SCHEDULE)")
	cmd.Flags().StringVar(&config.Report.MetricsFile, "metrics-file", config.Report.MetricsFile,
		"Write Prometheus metrics of each run to this file (LAYERSCAN_METRICS_FILE)")
	cmd.Flags().IntVar(&scanOpts.exitCode, "exit-code", 0,
		"Exit code to use when malware is found")

	return cmd
}

func (o *scanOptions) run(ctx context.Context, descriptors []string, outWriter io.Writer) error {
	config := o.config
	logger := o.logger.WithName("scan")

	policy, err := malwarereport.ParseFailurePolicy(config.Scanner.FailurePolicy)
	if err != nil {
		return err
	}
	if config.Report.Schedule != "" {
		if err := utils.ValidateCron(config.Report.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", config.Report.Schedule, err)
		}
	}
	// Fail on an unknown format before scanning anything.
	if _, err := malwarereport.NewWriter(config.Report.Format, io.Discard); err != nil {
		return err
	}

	components, err := readComponents(descriptors)
	if err != nil {
		return err
	}

	clamAVClient, err := o.clamAVClient()
	if err != nil {
		return err
	}
	keychain, err := o.keychain()
	if err != nil {
		return err
	}
	registry := oci.NewClient(
		oci.WithKeychain(keychain),
		oci.WithInsecure(config.Registry.Insecure),
		oci.WithLogger(o.logger),
	)
	driver := scan.NewDriver(registry, clamAVClient,
		scan.WithScanTimeout(config.ClamAV.ScanTimeout),
		scan.WithFlattenedImage(config.Scanner.ScanFlattenedImage),
		scan.WithLogger(o.logger),
	)
	recorder := metrics.NewRecorder()
	scanner := malwarereport.NewScanner(driver,
		malwarereport.WithWorkers(config.Scanner.MaxWorkers),
		malwarereport.WithResourceTimeout(config.Scanner.ResourceTimeout),
		malwarereport.WithFailurePolicy(policy),
		malwarereport.WithObserver(recorder),
		malwarereport.WithLogger(o.logger),
	)

	if config.Report.Schedule == "" {
		return o.scanOnce(ctx, scanner, recorder, components, outWriter)
	}

	for {
		err := o.scanOnce(ctx, scanner, recorder, components, outWriter)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Error(err, "Scan run finished with errors")
		}
		next, err := utils.NextCronDuration(config.Report.Schedule, o.clock.Now(), o.clock)
		if err != nil {
			return err
		}
		if utils.DurationExceeded(next) {
			continue
		}
		logger.Info("Waiting for next scheduled run", "schedule", config.Report.Schedule, "in", next.String())
		select {
		case <-ctx.Done():
			return nil
		case <-o.clock.After(next):
		}
	}
}

func (o *scanOptions) scanOnce(ctx context.Context, scanner *malwarereport.Scanner, recorder *metrics.Recorder, components []component.Component, outWriter io.Writer) error {
	writer, err := malwarereport.NewWriter(o.config.Report.Format, outWriter)
	if err != nil {
		return err
	}

	var summary malwarereport.Summary
	var failures error
	for item := range scanner.Scan(ctx, component.EnumerateOCIResources(components...)) {
		summary.Add(item)
		if item.Err != nil {
			failures = multierr.Append(failures, item.Err)
		}
		if debug := o.logger.V(4); debug.Enabled() {
			debug.Info("Received scan item", "item", spew.Sdump(item))
		}
		if err := writer.Write(item); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	if err := writer.Flush(summary); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	recorder.RunFinished(o.clock.Now())
	if path := o.config.Report.MetricsFile; path != "" {
		if err := recorder.WriteToTextfile(path); err != nil {
			return fmt.Errorf("writing metrics file: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if failures != nil {
		return failures
	}
	if !summary.Healthy() && o.exitCode != 0 {
		return &ExitError{Code: o.exitCode}
	}
	return nil
}

func (o *scanOptions) keychain() (authn.Keychain, error) {
	path := o.config.Registry.DockerConfig
	if path == "" {
		return authn.DefaultKeychain, nil
	}
	dockerConfig, err := docker.ReadConfigFile(path)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Using registry credentials", "dockerConfig", path, "registries", dockerConfig.Registries())
	return dockerConfig.Keychain(), nil
}

// readComponents reads all descriptor files, dropping components declared
// more than once.
func readComponents(descriptors []string) ([]component.Component, error) {
	var components []component.Component
	seen := hashset.New()
	for _, descriptor := range descriptors {
		var read []component.Component
		var err error
		if descriptor == "-" {
			read, err = component.ReadDescriptors(os.Stdin)
		} else {
			read, err = component.ReadDescriptorFile(descriptor)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", descriptor, err)
		}
		for _, c := range read {
			key := c.Name + ":" + c.Version
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		return nil, errors.New("no components found")
	}
	return components, nil
}
