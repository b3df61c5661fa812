// Staticlint runs the analyzers used on this repository as a single
// multichecker binary: a selection of go vet passes, ineffassign, nilerr,
// the noosexit analyzer and a configurable set of staticcheck checks.
//
// The staticcheck checks to enable are listed in a YAML or JSON file,
// config.yaml next to the binary by default or the path in STATICLINT_CONFIG:
//
//	staticcheck:
//	  - SA1000
//	  - SA4006
//
// Without a config file every SA check is enabled.
package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	// Standard analyzers from the Go toolchain.
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"

	// Third-party analyzers.
	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"

	"github.com/patric-chuzhbe/userapi/cmd/staticlint/noosexit"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"honnef.co/go/tools/staticcheck"
)

// DefaultConfig is the config file looked up next to the binary.
const DefaultConfig = `config.yaml`

// ConfigData describes the structure of the configuration file.
type ConfigData struct {
	// Staticcheck holds enabled staticcheck analyzer names, e.g. "SA1000".
	Staticcheck []string `yaml:"staticcheck"`
}

func loadConfig() (ConfigData, error) {
	path := os.Getenv("STATICLINT_CONFIG")
	if path == "" {
		appfile, err := os.Executable()
		if err != nil {
			return ConfigData{}, err
		}
		path = filepath.Join(filepath.Dir(appfile), DefaultConfig)
	}

	var cfg ConfigData
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("staticlint: failed to load config: %v", err)
	}

	myChecks := []*analysis.Analyzer{
		copylock.Analyzer,
		httpresponse.Analyzer, // Response bodies used before the error check.
		loopclosure.Analyzer,
		lostcancel.Analyzer, // Contexts that are never canceled.
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
	}

	checks := make(map[string]bool)
	for _, v := range cfg.Staticcheck {
		checks[v] = true
	}

	for _, v := range staticcheck.Analyzers {
		name := v.Analyzer.Name
		if checks[name] || (len(checks) == 0 && strings.HasPrefix(name, "SA")) {
			myChecks = append(myChecks, v.Analyzer)
		}
	}

	multichecker.Main(myChecks...)
}
