// Package normalize derives typed product attributes from listing text.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"RefurbTracker/internal/domain"
)

const (
	// FallbackChip is reported when no chip rule matches.
	FallbackChip = "Intel"

	NetworkBase = "GbE"
	NetworkHigh = "10GbE"
)

// coreSep accepts spaces, ASCII hyphens and the non-breaking hyphen the
// vendor uses in "12‑Core".
const coreSep = `[-\s\x{2011}]*`

// ChipRule recognises one chip variant. Pattern must capture generation,
// CPU cores and GPU cores, in that order.
type ChipRule struct {
	Variant string
	Pattern *regexp.Regexp
}

func (r ChipRule) match(name string) (domain.NormalizedAttributes, bool) {
	m := r.Pattern.FindStringSubmatch(name)
	if m == nil || len(m) < 4 {
		return domain.NormalizedAttributes{}, false
	}
	gen, _ := strconv.Atoi(m[1])
	cpu, _ := strconv.Atoi(m[2])
	gpu, _ := strconv.Atoi(m[3])

	family := "M" + m[1]
	if r.Variant != "" {
		family += " " + r.Variant
	}
	return domain.NormalizedAttributes{
		ChipFamily: family,
		Generation: gen,
		CPUCores:   cpu,
		GPUCores:   gpu,
	}, true
}

// DefaultChipRules lists chip variants most specific first. Order matters:
// a Pro name also satisfies the base rule.
func DefaultChipRules() []ChipRule {
	return []ChipRule{
		{
			Variant: "Pro",
			Pattern: regexp.MustCompile(`(?i)\bM(\d+)\s*Pro\b.*?(\d+)` + coreSep + `core CPU.*?(\d+)` + coreSep + `core GPU`),
		},
		{
			Variant: "",
			Pattern: regexp.MustCompile(`(?i)\bM(\d+)\b.*?(\d+)` + coreSep + `core CPU.*?(\d+)` + coreSep + `core GPU`),
		},
	}
}

// SpecRules holds the description patterns.
type SpecRules struct {
	// Noise is removed once before matching; it is the release-date note that
	// runs straight into the memory and storage text.
	Noise    *regexp.Regexp
	Memory   *regexp.Regexp
	Storage  *regexp.Regexp
	HighTier *regexp.Regexp
}

// DefaultSpecRules matches the vendor's description wording.
func DefaultSpecRules() SpecRules {
	return SpecRules{
		Noise:    regexp.MustCompile(`Originally released\s+\w+\s+\d{4}`),
		Memory:   regexp.MustCompile(`(?i)(\d+)\s*GB\s*unified\s*memory`),
		Storage:  regexp.MustCompile(`(?i)(\d+\s*[GT]B)\s*SSD`),
		HighTier: regexp.MustCompile(`(?i)10\s*Gigabit\s*Ethernet`),
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalizer applies chip and spec rules. It holds no mutable state.
type Normalizer struct {
	chips []ChipRule
	specs SpecRules
}

// New copies the rule tables so later edits by the caller have no effect.
func New(chips []ChipRule, specs SpecRules) *Normalizer {
	owned := make([]ChipRule, len(chips))
	copy(owned, chips)
	return &Normalizer{chips: owned, specs: specs}
}

// NewDefault builds a Normalizer from the default tables.
func NewDefault() *Normalizer {
	return New(DefaultChipRules(), DefaultSpecRules())
}

// Normalize derives attributes from a name and optional description.
func (n *Normalizer) Normalize(name, description string) domain.NormalizedAttributes {
	attrs := n.chip(name)
	attrs.MemorySize, attrs.StorageSize, attrs.NetworkClass = n.parseSpecs(description)
	return attrs
}

// Observe pairs a raw record with its normalized attributes.
func (n *Normalizer) Observe(record domain.RawProductRecord) domain.Observation {
	return domain.Observation{
		Record:     record,
		Attributes: n.Normalize(record.Name, record.Description),
	}
}

func (n *Normalizer) chip(name string) domain.NormalizedAttributes {
	for _, rule := range n.chips {
		if attrs, ok := rule.match(name); ok {
			return attrs
		}
	}
	return domain.NormalizedAttributes{ChipFamily: FallbackChip}
}

func (n *Normalizer) parseSpecs(description string) (memory, storage, network string) {
	network = NetworkBase
	if description == "" {
		return "", "", network
	}

	cleaned := description
	if n.specs.Noise != nil {
		if loc := n.specs.Noise.FindStringIndex(cleaned); loc != nil {
			cleaned = cleaned[:loc[0]] + cleaned[loc[1]:]
		}
	}

	if n.specs.Memory != nil {
		if m := n.specs.Memory.FindStringSubmatch(cleaned); m != nil {
			memory = m[1] + "GB"
		}
	}
	if n.specs.Storage != nil {
		if m := n.specs.Storage.FindStringSubmatch(cleaned); m != nil {
			storage = strings.ToUpper(whitespace.ReplaceAllString(m[1], ""))
		}
	}
	if n.specs.HighTier != nil && n.specs.HighTier.MatchString(cleaned) {
		network = NetworkHigh
	}
	return memory, storage, network
}
