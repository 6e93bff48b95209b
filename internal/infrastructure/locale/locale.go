// Package locale maps caller region/language codes to provider-specific codes.
// Unknown codes resolve to the table defaults instead of failing.
package locale

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed codes.yaml
var embeddedCodes []byte

type regionEntry struct {
	AdsLocation int    `yaml:"ads_location"`
	SerpCountry string `yaml:"serp_country"`
}

type languageEntry struct {
	AdsLanguage  int    `yaml:"ads_language"`
	SerpLanguage string `yaml:"serp_language"`
}

type tableFile struct {
	Defaults struct {
		AdsLocation  int    `yaml:"ads_location"`
		AdsLanguage  int    `yaml:"ads_language"`
		SerpCountry  string `yaml:"serp_country"`
		SerpLanguage string `yaml:"serp_language"`
	} `yaml:"defaults"`
	Regions   map[string]regionEntry   `yaml:"regions"`
	Languages map[string]languageEntry `yaml:"languages"`
}

type Table struct {
	file      tableFile
	regions   map[string]regionEntry
	languages map[string]languageEntry
}

// Default returns the built-in table.
func Default() *Table {
	table, err := Parse(embeddedCodes)
	if err != nil {
		panic(fmt.Sprintf("locale: embedded table: %v", err))
	}
	return table
}

// Load reads a table from path, or returns the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locale table: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse locale table: %w", err)
	}
	if file.Defaults.AdsLocation == 0 || file.Defaults.AdsLanguage == 0 {
		return nil, fmt.Errorf("parse locale table: defaults.ads_location and defaults.ads_language are required")
	}

	t := &Table{
		file:      file,
		regions:   make(map[string]regionEntry, len(file.Regions)),
		languages: make(map[string]languageEntry, len(file.Languages)),
	}
	for code, entry := range file.Regions {
		t.regions[normalizeRegion(code)] = entry
	}
	for code, entry := range file.Languages {
		t.languages[normalizeLanguage(code)] = entry
	}
	return t, nil
}

func (t *Table) AdsLocation(region string) int {
	if entry, ok := t.regions[normalizeRegion(region)]; ok && entry.AdsLocation > 0 {
		return entry.AdsLocation
	}
	return t.file.Defaults.AdsLocation
}

func (t *Table) AdsLanguage(language string) int {
	if entry, ok := t.languages[normalizeLanguage(language)]; ok && entry.AdsLanguage > 0 {
		return entry.AdsLanguage
	}
	return t.file.Defaults.AdsLanguage
}

func (t *Table) SerpCountry(region string) string {
	if entry, ok := t.regions[normalizeRegion(region)]; ok && entry.SerpCountry != "" {
		return entry.SerpCountry
	}
	return t.file.Defaults.SerpCountry
}

func (t *Table) SerpLanguage(language string) string {
	if entry, ok := t.languages[normalizeLanguage(language)]; ok && entry.SerpLanguage != "" {
		return entry.SerpLanguage
	}
	return t.file.Defaults.SerpLanguage
}

func normalizeRegion(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeLanguage accepts both "zh_TW" and "zh-tw" spellings.
func normalizeLanguage(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", "-"))
}
