// Package roster provides the set of principals eligible to approve
// whitelist versions.
package roster

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider reports whether a principal may approve whitelist versions.
type Provider interface {
	IsApprover(principal string) bool
	Approvers() []string
}

type staticProvider struct {
	approvers map[string]struct{}
	ordered   []string
}

// NewStatic creates a provider from a fixed approver list.
func NewStatic(approvers []string) Provider {
	p := &staticProvider{approvers: make(map[string]struct{}, len(approvers))}
	for _, a := range approvers {
		if _, ok := p.approvers[a]; ok {
			continue
		}
		p.approvers[a] = struct{}{}
		p.ordered = append(p.ordered, a)
	}
	return p
}

func (p *staticProvider) IsApprover(principal string) bool {
	_, ok := p.approvers[principal]
	return ok
}

func (p *staticProvider) Approvers() []string {
	return append([]string(nil), p.ordered...)
}

type rosterFile struct {
	Approvers []string `yaml:"approvers"`
}

// fileProvider serves the roster loaded from a YAML file. Reload swaps the
// set atomically so in-flight checks never see a partial roster.
type fileProvider struct {
	path string

	mu      sync.RWMutex
	current Provider
}

// NewFromFile loads the approver roster from a YAML file of the form:
//
//	approvers:
//	  - alice@example.com
//	  - bob@example.com
func NewFromFile(path string) (*fileProvider, error) {
	p := &fileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the roster file.
func (p *fileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read roster file: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse roster file: %w", err)
	}
	if len(file.Approvers) == 0 {
		return fmt.Errorf("roster file %s lists no approvers", p.path)
	}

	next := NewStatic(file.Approvers)

	p.mu.Lock()
	p.current = next
	p.mu.Unlock()
	return nil
}

func (p *fileProvider) IsApprover(principal string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.IsApprover(principal)
}

func (p *fileProvider) Approvers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Approvers()
}
