package callqueue

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// QueueConfig describes one PBX queue for display and service level
type QueueConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	SLThresholdSecs int    `yaml:"sl_threshold_seconds"`
	SLTarget        int    `yaml:"sl_target"` // percentage, e.g. 80
}

// Catalog maps queue ids to their configuration. Queues missing from the
// catalog are displayed by id and use the defaults.
type Catalog struct {
	queues           map[string]QueueConfig
	defaultThreshold int
	defaultTarget    int
}

type catalogFile struct {
	Queues []QueueConfig `yaml:"queues"`
}

// NewCatalog creates a catalog from explicit entries
func NewCatalog(defaultThreshold, defaultTarget int, queues ...QueueConfig) *Catalog {
	c := &Catalog{
		queues:           make(map[string]QueueConfig, len(queues)),
		defaultThreshold: defaultThreshold,
		defaultTarget:    defaultTarget,
	}
	for _, q := range queues {
		c.queues[q.ID] = q
	}
	return c
}

// LoadCatalog reads a YAML queue catalog. An empty path yields an empty catalog.
func LoadCatalog(path string, defaultThreshold, defaultTarget int) (*Catalog, error) {
	if path == "" {
		return NewCatalog(defaultThreshold, defaultTarget), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queue catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing queue catalog: %w", err)
	}

	for i, q := range file.Queues {
		if q.ID == "" {
			return nil, fmt.Errorf("queue catalog entry %d: id is required", i)
		}
		if q.SLThresholdSecs < 0 {
			return nil, fmt.Errorf("queue %s: sl_threshold_seconds must not be negative", q.ID)
		}
		if q.SLTarget < 0 || q.SLTarget > 100 {
			return nil, fmt.Errorf("queue %s: sl_target must be between 0 and 100, got %d", q.ID, q.SLTarget)
		}
	}

	return NewCatalog(defaultThreshold, defaultTarget, file.Queues...), nil
}

// Config returns the queue's configuration with defaults filled in
func (c *Catalog) Config(id string) QueueConfig {
	q, ok := c.queues[id]
	if !ok {
		q = QueueConfig{ID: id}
	}
	if q.Name == "" {
		q.Name = id
	}
	if q.SLThresholdSecs == 0 {
		q.SLThresholdSecs = c.defaultThreshold
	}
	if q.SLTarget == 0 {
		q.SLTarget = c.defaultTarget
	}
	return q
}

// Name returns the display name of a queue
func (c *Catalog) Name(id string) string {
	return c.Config(id).Name
}

// IDs returns the configured queue ids in order
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.queues))
	for id := range c.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
