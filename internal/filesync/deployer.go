package filesync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/appspec"
	"bundle-deployer/internal/logger"
)

// Result is the outcome of installing one file mapping.
type Result struct {
	Mapping appspec.FileMapping
	Err     error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

func AllSucceeded(results []Result) bool {
	for _, r := range results {
		if !r.Succeeded() {
			return false
		}
	}
	return true
}

// FailedSources lists the sources of mappings that did not install.
func FailedSources(results []Result) []string {
	var failed []string
	for _, r := range results {
		if r.Succeeded() {
			continue
		}
		name := r.Mapping.Source
		if name == "" {
			name = "<missing source>"
		}
		failed = append(failed, name)
	}
	return failed
}

// Deployer installs appspec file mappings from an extracted bundle.
type Deployer struct {
	syncer Syncer
	logger *logrus.Entry
}

func NewDeployer(syncer Syncer) *Deployer {
	if syncer == nil {
		syncer = LocalSyncer{}
	}
	return &Deployer{syncer: syncer, logger: logger.WithModule("filesync")}
}

// Deploy installs every mapping in order. A failed mapping is recorded and
// the next one is still attempted.
func (d *Deployer) Deploy(root string, mappings []appspec.FileMapping) []Result {
	results := make([]Result, 0, len(mappings))
	for _, m := range mappings {
		results = append(results, Result{Mapping: m, Err: d.install(root, m)})
	}
	return results
}

func (d *Deployer) install(root string, m appspec.FileMapping) error {
	log := d.logger.WithFields(logrus.Fields{"source": m.Source, "destination": m.Destination})

	if err := m.Validate(); err != nil {
		log.WithError(err).Error("Invalid appspec files configuration")
		return err
	}
	// "/" names the bundle root, as in CodeDeploy appspecs.
	rel := strings.TrimLeft(m.Source, "/")
	if rel == "" {
		rel = "."
	}
	if !filepath.IsLocal(rel) {
		err := fmt.Errorf("%w: source %q is outside the bundle", appspec.ErrFileMappingInvalid, m.Source)
		log.WithError(err).Error("Invalid appspec files configuration")
		return err
	}

	source := filepath.Join(root, rel)
	info, err := os.Stat(source)
	if err != nil {
		log.WithError(err).Error("Source not found in bundle")
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}

	log.Info("Copying files")
	if err := d.syncer.Sync(source, m.Destination, info.IsDir()); err != nil {
		log.WithError(err).Error("Copying files failed")
		return err
	}
	return nil
}
