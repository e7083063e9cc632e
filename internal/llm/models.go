package llm

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ModelSize represents t-shirt sizes for models
type ModelSize string

const (
	SizeXS ModelSize = "XS" // < 2B params
	SizeS  ModelSize = "S"  // 2-6B params
	SizeM  ModelSize = "M"  // 7-13B params
	SizeL  ModelSize = "L"  // 14-69B params
	SizeXL ModelSize = "XL" // 70B+ params
)

var paramPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([bm])\b`)

// Billions returns the parameter count in billions, taken from the details block
// ("8.0B") or failing that from the tag ("llama3.2:1b"). Zero means unknown.
func (m Model) Billions() float64 {
	for _, s := range []string{m.Details.ParameterSize, m.Name} {
		if n := parseParams(s); n > 0 {
			return n
		}
	}
	return 0
}

// SizeClass classifies the model by parameter count. Unknown sizes count as medium.
func (m Model) SizeClass() ModelSize {
	n := m.Billions()
	switch {
	case n == 0:
		return SizeM
	case n < 2:
		return SizeXS
	case n < 7:
		return SizeS
	case n < 14:
		return SizeM
	case n < 70:
		return SizeL
	default:
		return SizeXL
	}
}

func parseParams(s string) float64 {
	match := paramPattern.FindStringSubmatch(strings.ToLower(s))
	if match == nil {
		return 0
	}
	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if match[2] == "m" {
		n /= 1000
	}
	return n
}

// SizeDescription returns a human-friendly description
func SizeDescription(size ModelSize) string {
	switch size {
	case SizeXS:
		return "Extra Small (<2B params)"
	case SizeS:
		return "Small (2-6B params)"
	case SizeM:
		return "Medium (7-13B params)"
	case SizeL:
		return "Large (14-69B params)"
	case SizeXL:
		return "Extra Large (70B+ params)"
	default:
		return "Unknown"
	}
}

// SortModels orders models smallest first, then by name.
func SortModels(models []Model) {
	sort.SliceStable(models, func(i, j int) bool {
		a, b := models[i].Billions(), models[j].Billions()
		if a != b {
			return a < b
		}
		return models[i].Name < models[j].Name
	})
}

// GroupBySize groups models by size.
func GroupBySize(models []Model) map[ModelSize][]Model {
	grouped := make(map[ModelSize][]Model)
	for _, m := range models {
		grouped[m.SizeClass()] = append(grouped[m.SizeClass()], m)
	}
	return grouped
}
