package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadDir adds every <locale>.yaml (or .yml) file in dir to the catalog and
// returns the locale codes it loaded. A file named after an existing locale
// replaces that locale's table.
func (c *Catalog) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}

	var loaded []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		code := strings.TrimSuffix(e.Name(), ext)
		s, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		c.Add(code, s)
		loaded = append(loaded, code)
	}
	return loaded, nil
}

// LoadFile parses one YAML string table. Keys follow the popup's naming
// (btn_txt, generate_on, headers.versionnumber, ...).
func LoadFile(path string) (*Strings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", path, err)
	}
	var s Strings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("i18n: parse %s: %w", path, err)
	}
	return &s, nil
}
