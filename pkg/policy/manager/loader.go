package manager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"veritas-hq/warden/pkg/policy"
)

// LoadError reports a policy file that could not be read.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load %s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("load %s: %s", e.FilePath, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// ParseError reports a policy file that read fine but did not parse or
// validate.
type ParseError struct {
	FilePath string
	Message  string
	Cause    error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse %s: %s", e.FilePath, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// LoaderConfig contains configuration for the Loader.
type LoaderConfig struct {
	// MaxFileSize caps a single policy file.
	// Default: 1 MiB
	MaxFileSize int64

	// Extensions lists the file extensions treated as policy documents.
	// Default: .yaml, .yml
	Extensions []string
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		MaxFileSize: 1 << 20,
		Extensions:  []string{".yaml", ".yml"},
	}
}

// Loader reads policy documents from the file system.
type Loader struct {
	config LoaderConfig
}

// NewLoader creates a Loader. Zero-valued config fields take defaults.
func NewLoader(config LoaderConfig) *Loader {
	defaults := DefaultLoaderConfig()
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaults.MaxFileSize
	}
	if len(config.Extensions) == 0 {
		config.Extensions = defaults.Extensions
	}
	return &Loader{config: config}
}

// LoadFile parses one policy file, which may hold multiple YAML
// documents. Every document must validate.
func (l *Loader) LoadFile(path string) ([]policy.Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), l.config.MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8"}
	}

	return l.parse(path, data)
}

func (l *Loader) parse(path string, data []byte) ([]policy.Policy, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))

	var policies []policy.Policy
	for {
		var doc policyDocument
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{FilePath: path, Message: "YAML parsing failed", Cause: err}
		}
		if doc.empty() {
			continue
		}

		p := doc.toPolicy()
		if err := p.Validate(); err != nil {
			return nil, &ParseError{FilePath: path, Message: "validation failed", Cause: err}
		}
		policies = append(policies, p)
	}

	return policies, nil
}

// LoadDirectory parses every policy file under dir, recursively,
// skipping hidden files. Duplicate policy ids across files are an
// error. A missing directory yields an empty set.
func (l *Loader) LoadDirectory(dir string) ([]policy.Policy, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if l.recognized(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{FilePath: dir, Message: "directory walk failed", Cause: err}
	}

	// Load order is part of the evaluation contract for equal
	// priorities, so walk results are sorted for stability.
	sort.Strings(paths)

	var policies []policy.Policy
	seen := make(map[string]string)
	for _, path := range paths {
		loaded, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, p := range loaded {
			if prior, dup := seen[p.ID]; dup {
				return nil, &ParseError{
					FilePath: path,
					Message:  fmt.Sprintf("duplicate policy id %q (first defined in %s)", p.ID, prior),
				}
			}
			seen[p.ID] = path
			policies = append(policies, p)
		}
	}

	return policies, nil
}

func (l *Loader) recognized(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range l.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// policyDocument is the on-disk shape. Enabled defaults to true when the
// key is absent, which the struct zero value cannot express directly.
type policyDocument struct {
	ID          string            `yaml:"id"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description"`
	Priority    int               `yaml:"priority"`
	Scope       policy.Scope      `yaml:"scope"`
	Conditions  policy.Conditions `yaml:"conditions"`
	Effect      policy.Effect     `yaml:"effect"`
	Enabled     *bool             `yaml:"enabled"`
}

func (d policyDocument) empty() bool {
	return d.ID == "" && d.Effect == "" && d.Scope.Empty() && d.Conditions.Empty()
}

func (d policyDocument) toPolicy() policy.Policy {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return policy.Policy{
		ID:          d.ID,
		Version:     d.Version,
		Description: d.Description,
		Priority:    d.Priority,
		Scope:       d.Scope,
		Conditions:  d.Conditions,
		Effect:      d.Effect,
		Enabled:     enabled,
	}
}
