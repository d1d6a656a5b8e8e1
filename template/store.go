package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File layout constants under the templates directory.
const (
	// TemplateFile is the current document for a custom template.
	TemplateFile = "template.yaml"
	// VersionsDir holds immutable per-version snapshots.
	VersionsDir = "versions"
)

// Store provides file-backed, versioned template storage. Custom templates
// live as YAML documents under dir; built-in templates are compiled in and
// shadowed by a same-name custom document.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a template store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// templatePath returns the path to a custom template document.
func (s *Store) templatePath(name string) string {
	return filepath.Join(s.dir, name, TemplateFile)
}

// versionPath returns the path to a version snapshot.
func (s *Store) versionPath(name string, version int) string {
	return filepath.Join(s.dir, name, VersionsDir, fmt.Sprintf("%d.yaml", version))
}

// Get returns the template for name. A custom document shadows a built-in
// of the same name.
func (s *Store) Get(name string) (*WorkflowTemplate, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	t, err := s.loadDocument(s.templatePath(name))
	if err == nil {
		return t, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	if builtin, ok := builtinCatalog[name]; ok {
		return builtin.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// List returns every known template, built-in and custom, customs shadowing
// built-ins of the same name. Results are sorted by name.
func (s *Store) List() ([]*WorkflowTemplate, error) {
	merged := Builtins()

	entries, err := os.ReadDir(s.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		t, err := s.loadDocument(s.templatePath(entry.Name()))
		if err != nil {
			// Skip directories without a current document (version
			// history may outlive a deleted shadow).
			if os.IsNotExist(err) {
				continue
			}
			s.logger.Warn("skipping unreadable template",
				slog.String("name", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		merged[t.Name] = t
	}

	out := make([]*WorkflowTemplate, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Create persists a brand-new custom template at version 1.
func (s *Store) Create(t *WorkflowTemplate, changedBy, description string) (*WorkflowTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, ok := builtinCatalog[t.Name]; ok {
		return nil, fmt.Errorf("%w: %s is built-in; update it to create an override", ErrTemplateExists, t.Name)
	}
	if _, err := os.Stat(s.templatePath(t.Name)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateExists, t.Name)
	}

	now := time.Now()
	doc := t.Clone()
	doc.Builtin = false
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.writeDocument(doc); err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(doc, changedBy, description); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update applies new content to an existing template, incrementing its
// version and snapshotting the result. Updating a built-in writes a custom
// override of the same name that shadows it.
func (s *Store) Update(t *WorkflowTemplate, changedBy, description string) (*WorkflowTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(t.Name)
	if err != nil {
		return nil, err
	}

	// Make sure the outgoing content is snapshotted before the new
	// version lands. Built-in bases have no snapshot on disk until the
	// first edit.
	if err := s.ensureSnapshot(current); err != nil {
		return nil, err
	}

	doc := t.Clone()
	doc.Builtin = false
	doc.Version = current.Version + 1
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = time.Now()

	if err := s.writeDocument(doc); err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(doc, changedBy, description); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a custom template. Deleting the shadow of a built-in
// restores built-in behaviour; deleting a built-in with no shadow fails.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	docPath := s.templatePath(name)
	if _, err := os.Stat(docPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat template %s: %w", name, err)
		}
		if _, ok := builtinCatalog[name]; ok {
			return &ValidationError{Field: "name", Message: fmt.Sprintf("cannot delete built-in template %q", name)}
		}
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	// Version history is append-only and survives shadow removal.
	if err := os.Remove(docPath); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", name, err)
	}
	return nil
}

// Duplicate copies the current content of name under newName at version 1.
func (s *Store) Duplicate(name, newName, changedBy string) (*WorkflowTemplate, error) {
	src, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	dup := src.Clone()
	dup.Name = newName
	dup.DisplayName = src.DisplayName + " (copy)"
	dup.Builtin = false
	return s.Create(dup, changedBy, fmt.Sprintf("duplicated from %s v%d", name, src.Version))
}

// ListVersions returns the snapshot metadata for a template, oldest first.
func (s *Store) ListVersions(name string) ([]VersionMeta, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := s.Get(name); err != nil {
		return nil, err
	}

	versionsDir := filepath.Join(s.dir, name, VersionsDir)
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []VersionMeta{}, nil
		}
		return nil, fmt.Errorf("failed to read versions directory: %w", err)
	}

	var metas []VersionMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue
		}
		tv, err := s.loadSnapshot(name, v)
		if err != nil {
			s.logger.Warn("skipping unreadable template version",
				slog.String("name", name),
				slog.Int("version", v),
				slog.String("error", err.Error()))
			continue
		}
		metas = append(metas, tv.VersionMeta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Version < metas[j].Version })
	return metas, nil
}

// GetVersion returns the immutable snapshot for (name, version). Version 1
// of a never-edited built-in resolves to the compiled-in content.
func (s *Store) GetVersion(name string, version int) (*TemplateVersion, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	tv, err := s.loadSnapshot(name, version)
	if err == nil {
		return tv, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read template version: %w", err)
	}

	if builtin, ok := builtinCatalog[name]; ok && version == builtin.Version {
		return &TemplateVersion{
			VersionMeta: VersionMeta{
				TemplateName: name,
				Version:      builtin.Version,
				ChangedBy:    "system",
				CreatedAt:    builtin.CreatedAt,
			},
			Template: builtin.Clone(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, name, version)
}

// RestoreVersion writes a brand-new version whose content deep-equals the
// target historical snapshot. History is never rewritten.
func (s *Store) RestoreVersion(name string, version int, changedBy, description string) (*WorkflowTemplate, error) {
	target, err := s.GetVersion(name, version)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSnapshot(current); err != nil {
		return nil, err
	}

	doc := target.Template.Clone()
	doc.Name = name
	doc.Builtin = false
	doc.Version = current.Version + 1
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = time.Now()

	if description == "" {
		description = fmt.Sprintf("restored from v%d", version)
	}
	if err := s.writeDocument(doc); err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(doc, changedBy, description); err != nil {
		return nil, err
	}
	return doc, nil
}

// loadDocument reads a template document from disk. Returns the raw
// os.ReadFile error (including IsNotExist) so callers can branch on it.
func (s *Store) loadDocument(path string) (*WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t WorkflowTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &t, nil
}

// writeDocument persists the current document for a template.
func (s *Store) writeDocument(t *WorkflowTemplate) error {
	path := s.templatePath(t.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// writeSnapshot persists an immutable version snapshot. Snapshots are
// never overwritten.
func (s *Store) writeSnapshot(t *WorkflowTemplate, changedBy, description string) error {
	path := s.versionPath(t.Name, t.Version)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("template version %s v%d already exists", t.Name, t.Version)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create versions directory: %w", err)
	}

	tv := &TemplateVersion{
		VersionMeta: VersionMeta{
			TemplateName:      t.Name,
			Version:           t.Version,
			ChangedBy:         changedBy,
			ChangeDescription: description,
			CreatedAt:         time.Now(),
		},
		Template: t.Clone(),
	}
	data, err := yaml.Marshal(tv)
	if err != nil {
		return fmt.Errorf("failed to marshal template version: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write template version: %w", err)
	}
	return nil
}

// ensureSnapshot materialises a snapshot for the given content if one is
// not already on disk. Covers the first edit of a built-in, whose base
// version exists only in the compiled-in catalog.
func (s *Store) ensureSnapshot(t *WorkflowTemplate) error {
	if _, err := os.Stat(s.versionPath(t.Name, t.Version)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat template version: %w", err)
	}
	return s.writeSnapshot(t, "system", "materialized base version")
}

// loadSnapshot reads one version snapshot, passing through raw read errors.
func (s *Store) loadSnapshot(name string, version int) (*TemplateVersion, error) {
	data, err := os.ReadFile(s.versionPath(name, version))
	if err != nil {
		return nil, err
	}
	var tv TemplateVersion
	if err := yaml.Unmarshal(data, &tv); err != nil {
		return nil, fmt.Errorf("failed to parse template version: %w", err)
	}
	return &tv, nil
}
