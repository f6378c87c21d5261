package etc

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// BuildInfo holds build info such as Git revision, Git SHA-1,
// and build datetime.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Config struct {
	ClamAV     ClamAV
	Scanner    Scanner
	Registry   Registry
	Report     Report
	LogDevMode bool `env:"LAYERSCAN_LOG_DEV_MODE" envDefault:"false"`
}

type ClamAV struct {
	URL         string        `env:"LAYERSCAN_CLAMAV_URL"`
	ScanTimeout time.Duration `env:"LAYERSCAN_SCAN_TIMEOUT" envDefault:"15m"`
}

type Scanner struct {
	MaxWorkers         int           `env:"LAYERSCAN_MAX_WORKERS" envDefault:"16"`
	ResourceTimeout    time.Duration `env:"LAYERSCAN_RESOURCE_TIMEOUT" envDefault:"0s"`
	FailurePolicy      string        `env:"LAYERSCAN_FAILURE_POLICY" envDefault:"ReportInline"`
	ScanFlattenedImage bool          `env:"LAYERSCAN_SCAN_FLATTENED_IMAGE" envDefault:"false"`
}

type Registry struct {
	DockerConfig string `env:"LAYERSCAN_DOCKER_CONFIG"`
	Insecure     bool   `env:"LAYERSCAN_INSECURE_REGISTRY" envDefault:"false"`
}

type Report struct {
	Format      string `env:"LAYERSCAN_OUTPUT" envDefault:"table"`
	Schedule    string `env:"LAYERSCAN_SCHEDULE"`
	MetricsFile string `env:"LAYERSCAN_METRICS_FILE"`
}

func GetConfig() (Config, error) {
	var config Config
	err := env.Parse(&config)
	return config, err
}

// GetURL returns the base URL of the scan service.
func (c ClamAV) GetURL() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	return "", fmt.Errorf("%s must be set", "LAYERSCAN_CLAMAV_URL")
}
