package templates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

// Store keeps deployment templates as JSON files under one directory. The
// name is validated before it ever touches a path, so names cannot address
// anything outside the directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating template directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the template, replacing any existing one with the same name.
// The write goes through a temp file and rename so a crash never leaves a
// half-written template behind. A replaced template keeps its original
// creation time.
func (s *Store) Save(name string, tmpl *models.Template) error {
	if !models.ValidTemplateName(name) {
		return wingerr.Validationf("invalid template name %q", name)
	}

	tmpl.Name = name
	tmpl.UpdatedAt = time.Now().UTC()
	if existing, err := s.Get(name); err == nil {
		tmpl.CreatedAt = existing.CreatedAt
	} else if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = tmpl.UpdatedAt
	}

	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding template %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing template %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing template %s: %w", name, err)
	}

	logger.WithField("template", name).Info("Template saved")
	return nil
}

// Get loads one template by name.
func (s *Store) Get(name string) (*models.Template, error) {
	if !models.ValidTemplateName(name) {
		return nil, wingerr.Validationf("invalid template name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wingerr.NotFound("template", name)
		}
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}

	var tmpl models.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("decoding template %s: %w", name, err)
	}
	return &tmpl, nil
}

// List returns every readable template, sorted by name. Unreadable files
// are logged and skipped so one corrupt file cannot hide the rest.
func (s *Store) List() ([]models.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	templates := make([]models.Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		tmpl, err := s.Get(name)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"template": name,
				"error":    err.Error(),
			}).Warn("Skipping unreadable template")
			continue
		}
		templates = append(templates, *tmpl)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}
