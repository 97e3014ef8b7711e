package proctor

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

// LabelRule maps detector labels to a category. Rules are evaluated in slice order and the
// first matching rule wins.
type LabelRule struct {
	Category ObjectCategory `yaml:"category"`
	Match    MatchMode      `yaml:"match"`
	Keywords []string       `yaml:"keywords"`
}

func (r LabelRule) matches(label string) bool {
	for _, kw := range r.Keywords {
		if r.Match == MatchExact {
			if label == kw {
				return true
			}
			continue
		}
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

// LabelTable is the versioned detector-label lookup. Aliases are exact lookups consulted before
// the ordered keyword rules.
type LabelTable struct {
	Version string                    `yaml:"version"`
	Aliases map[string]ObjectCategory `yaml:"aliases"`
	Rules   []LabelRule               `yaml:"rules"`
}

func DefaultLabelTable() LabelTable {
	return LabelTable{
		Version: "coco-2024.1",
		Aliases: map[string]ObjectCategory{
			// "phone" would otherwise win for these.
			"headphone":  CategoryHeadphones,
			"headphones": CategoryHeadphones,
			"earphones":  CategoryHeadphones,
			"tablet":     CategoryLaptop,
		},
		Rules: []LabelRule{
			{Category: CategoryPerson, Match: MatchExact, Keywords: []string{"person"}},
			{Category: CategoryCellPhone, Match: MatchContains, Keywords: []string{"cell", "phone", "mobile", "smartphone"}},
			{Category: CategoryBook, Match: MatchContains, Keywords: []string{"book"}},
			{Category: CategoryLaptop, Match: MatchContains, Keywords: []string{"laptop", "computer", "notebook"}},
			{Category: CategoryRemote, Match: MatchContains, Keywords: []string{"remote"}},
			{Category: CategoryKeyboard, Match: MatchContains, Keywords: []string{"keyboard"}},
			{Category: CategoryMouse, Match: MatchContains, Keywords: []string{"mouse"}},
			{Category: CategoryBottle, Match: MatchContains, Keywords: []string{"bottle"}},
			{Category: CategoryScreen, Match: MatchContains, Keywords: []string{"tv", "monitor", "screen"}},
			{Category: CategoryWritingTool, Match: MatchContains, Keywords: []string{"pen", "pencil"}},
			{Category: CategoryPaper, Match: MatchContains, Keywords: []string{"paper", "clipboard"}},
			{Category: CategoryBag, Match: MatchContains, Keywords: []string{"bag", "backpack"}},
			{Category: CategoryHeadphones, Match: MatchContains, Keywords: []string{"headphone", "earbud"}},
			{Category: CategoryWatch, Match: MatchContains, Keywords: []string{"watch"}},
			{Category: CategoryGlasses, Match: MatchContains, Keywords: []string{"glasses", "sunglasses"}},
		},
	}
}

// NormalizeLabel folds a raw detector label into the form used for lookups.
func NormalizeLabel(label string) string {
	label = norm.NFKC.String(label)
	label = strings.ToLower(label)
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

func (t LabelTable) Lookup(label string) ObjectCategory {
	label = NormalizeLabel(label)
	if label == "" {
		return CategoryNone
	}

	if cat, ok := t.Aliases[label]; ok {
		return cat
	}

	for _, rule := range t.Rules {
		if rule.matches(label) {
			return rule.Category
		}
	}

	return CategorySuspicious
}

func (t LabelTable) Validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return fmt.Errorf("label table: version is required")
	}

	for alias, cat := range t.Aliases {
		if NormalizeLabel(alias) != alias {
			return fmt.Errorf("label table %s: alias %q is not normalized", t.Version, alias)
		}
		if !cat.Valid() || cat == CategoryNone {
			return fmt.Errorf("label table %s: alias %q maps to unknown category %q", t.Version, alias, cat)
		}
	}

	if len(t.Rules) == 0 {
		return fmt.Errorf("label table %s: no rules", t.Version)
	}

	for i, rule := range t.Rules {
		if !rule.Category.Valid() || rule.Category == CategoryNone {
			return fmt.Errorf("label table %s: rule %d has unknown category %q", t.Version, i, rule.Category)
		}
		if rule.Match != MatchExact && rule.Match != MatchContains {
			return fmt.Errorf("label table %s: rule %d has unknown match mode %q", t.Version, i, rule.Match)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("label table %s: rule %d (%s) has no keywords", t.Version, i, rule.Category)
		}
		for _, kw := range rule.Keywords {
			if kw == "" || NormalizeLabel(kw) != kw {
				return fmt.Errorf("label table %s: rule %d (%s) keyword %q is not normalized", t.Version, i, rule.Category, kw)
			}
		}
	}

	return nil
}

// Unmapped returns the known detector labels that resolve to the suspicious fallback.
func (t LabelTable) Unmapped(knownLabels []string) []string {
	var unmapped []string
	for _, label := range knownLabels {
		if t.Lookup(label) == CategorySuspicious {
			unmapped = append(unmapped, label)
		}
	}
	return unmapped
}

func LoadLabelTable(path string) (LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LabelTable{}, fmt.Errorf("read label table: %w", err)
	}

	var table LabelTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return LabelTable{}, fmt.Errorf("parse label table %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return LabelTable{}, err
	}

	return table, nil
}

// LoadKnownLabels reads the detector's label set, one label per line or a YAML list.
func LoadKnownLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read known labels: %w", err)
	}

	var labels []string
	if err := yaml.Unmarshal(data, &labels); err == nil && len(labels) > 0 {
		return labels, nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			labels = append(labels, line)
		}
	}
	return labels, nil
}
