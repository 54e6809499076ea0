package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader resolves contract identifiers.
//
// Load fails on unknown ids; callers translate that into the
// contract_not_found failure code.
type Loader interface {
	Load(id string) (*Contract, error)
}

// Registry is an in-memory loader, used by tests and embedded deployments.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
}

// NewRegistry creates an empty contract registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]*Contract)}
}

// Register adds or replaces a contract.
func (r *Registry) Register(c *Contract) {
	if c == nil || c.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.ID] = c
}

// Load implements Loader.
func (r *Registry) Load(id string) (*Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[id]
	if !ok {
		return nil, fmt.Errorf("no contract with id %q", id)
	}
	return c, nil
}

// FileLoader reads contracts from a directory, one YAML document per
// contract, named "<id>.yaml". Loaded contracts are cached.
type FileLoader struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Contract
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{
		dir:   dir,
		cache: make(map[string]*Contract),
	}
}

// Load implements Loader.
func (l *FileLoader) Load(id string) (*Contract, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("contract id cannot be empty")
	}
	// Contract ids become file names; refuse anything that could escape dir.
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid contract id %q", id)
	}

	l.mu.RLock()
	cached, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path := filepath.Join(l.dir, id+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no contract with id %q", id)
		}
		return nil, fmt.Errorf("failed to read contract %q: %w", id, err)
	}

	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse contract %q: %w", id, err)
	}
	if c.ID == "" {
		c.ID = id
	}
	if c.ID != id {
		return nil, fmt.Errorf("contract file %s declares id %q", path, c.ID)
	}

	l.mu.Lock()
	l.cache[id] = &c
	l.mu.Unlock()
	return &c, nil
}
