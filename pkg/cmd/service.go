package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

const (
	outputFlag = "output"
)

func registerOutputFlag(cmd *cobra.Command, defaultFormat, usage string) {
	cmd.Flags().StringP(outputFlag, "o", defaultFormat, usage)
}

// printObject prints v in the format selected with the output flag.
func printObject(cmd *cobra.Command, outWriter io.Writer, v interface{}) error {
	format := cmd.Flag(outputFlag).Value.String()
	switch format {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = outWriter.Write(data)
		return err
	case "json":
		encoder := json.NewEncoder(outWriter)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	default:
		return fmt.Errorf("invalid output format %q, allowed formats are: yaml,json", format)
	}
}

func NewInfoCmd(opts *globalOptions, outWriter io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the scan engine version and signature database",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.clamAVClient()
			if err != nil {
				return err
			}
			info, err := client.Info(contextOf(cmd))
			if err != nil {
				return fmt.Errorf("getting scan service info: %w", err)
			}
			return printObject(cmd, outWriter, info)
		},
	}
	registerOutputFlag(cmd, "yaml", "Output format. One of yaml|json")
	return cmd
}

func NewHealthCmd(opts *globalOptions, outWriter io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the scan service is ready to scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.clamAVClient()
			if err != nil {
				return err
			}
			health, err := client.Health(contextOf(cmd))
			if err != nil {
				return fmt.Errorf("checking scan service health: %w", err)
			}
			if err := printObject(cmd, outWriter, health); err != nil {
				return err
			}
			if !health.OK {
				return fmt.Errorf("scan service is not healthy: %s", health.Message)
			}
			return nil
		},
	}
	registerOutputFlag(cmd, "yaml", "Output format. One of yaml|json")
	return cmd
}

func NewMonitorCmd(opts *globalOptions, outWriter io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print the scan service thread pool and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.clamAVClient()
			if err != nil {
				return err
			}
			info, err := client.Monitor(contextOf(cmd))
			if err != nil {
				return fmt.Errorf("monitoring scan service: %w", err)
			}
			return printObject(cmd, outWriter, info)
		},
	}
	registerOutputFlag(cmd, "yaml", "Output format. One of yaml|json")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
