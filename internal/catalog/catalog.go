package catalog

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"spaplan/internal/domain"
)

// Catalog is the static reference data a board is scheduled against. It is
// loaded once at startup and never mutated afterwards.
type Catalog struct {
	Workers  []domain.Worker  `yaml:"workers"`
	Services []domain.Service `yaml:"services"`

	workersByID  map[string]domain.Worker
	servicesByID map[string]domain.Service
	workerByName map[string]domain.Worker
}

// Default returns the built-in spa catalog.
func Default() *Catalog {
	c := &Catalog{
		Workers: []domain.Worker{
			{ID: "w1", Name: "Ayu"},
			{ID: "w2", Name: "Budi"},
			{ID: "w3", Name: "Citra"},
			{ID: "w4", Name: "Dewa"},
		},
		Services: []domain.Service{
			{ID: "svc_thai", Name: "Thai Massage", DurationMin: 60},
			{ID: "svc_deep", Name: "Deep Tissue", DurationMin: 120},
			{ID: "svc_swed", Name: "Swedish Massage", DurationMin: 60},
			{ID: "svc_hot", Name: "Hot Stone", DurationMin: 90},
			{ID: "svc_facial", Name: "Facial Treatment", DurationMin: 45},
			{ID: "svc_reflex", Name: "Reflexology", DurationMin: 30},
		},
	}
	if err := c.index(); err != nil {
		panic(err) // built-in data, cannot fail
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return &c, nil
}

func (c *Catalog) index() error {
	if len(c.Workers) == 0 {
		return fmt.Errorf("no workers")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("no services")
	}
	c.workersByID = make(map[string]domain.Worker, len(c.Workers))
	c.workerByName = make(map[string]domain.Worker, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" || w.Name == "" {
			return fmt.Errorf("worker needs id and name: %+v", w)
		}
		if _, dup := c.workersByID[w.ID]; dup {
			return fmt.Errorf("duplicate worker id %q", w.ID)
		}
		c.workersByID[w.ID] = w
		c.workerByName[w.Name] = w
	}
	c.servicesByID = make(map[string]domain.Service, len(c.Services))
	for _, s := range c.Services {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("service needs id and name: %+v", s)
		}
		if s.DurationMin <= 0 {
			return fmt.Errorf("service %q needs a positive duration", s.ID)
		}
		if _, dup := c.servicesByID[s.ID]; dup {
			return fmt.Errorf("duplicate service id %q", s.ID)
		}
		c.servicesByID[s.ID] = s
	}
	return nil
}

func (c *Catalog) Worker(id string) (domain.Worker, bool) {
	w, ok := c.workersByID[id]
	return w, ok
}

// WorkerByName resolves the display name carried by timeline drop payloads.
func (c *Catalog) WorkerByName(name string) (domain.Worker, bool) {
	w, ok := c.workerByName[name]
	return w, ok
}

func (c *Catalog) Service(id string) (domain.Service, bool) {
	s, ok := c.servicesByID[id]
	return s, ok
}
