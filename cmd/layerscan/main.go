package main

import (
	"errors"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/aquasecurity/layerscan/pkg/cmd"
	"github.com/aquasecurity/layerscan/pkg/etc"
)

var (
	// These variables are populated by GoReleaser via ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"

	buildInfo = etc.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
)

// main is the entrypoint of the layerscan executable command.
func main() {
	klog.InitFlags(nil)

	err := cmd.Run(buildInfo, os.Args, os.Stdout, os.Stderr)
	klog.Flush()
	if err == nil {
		return
	}
	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
