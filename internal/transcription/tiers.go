package transcription

import (
	"errors"
	"fmt"
)

// ErrUnknownTier is returned for tier labels outside the catalog or not offered.
var ErrUnknownTier = errors.New("unknown tier")

// Tier maps a speed/accuracy label to a Whisper model.
type Tier struct {
	Label       string `yaml:"label" json:"label" validate:"required"`
	Model       string `yaml:"model" json:"model" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// DefaultTiers returns the five Whisper performance levels, fastest first.
func DefaultTiers() []Tier {
	return []Tier{
		{Label: "Faster", Model: "tiny", Description: "(audio duration / 2)"},
		{Label: "Fast", Model: "base", Description: "(audio duration)"},
		{Label: "Balanced", Model: "small", Description: "(audio duration x 2)"},
		{Label: "Accurate", Model: "medium"},
		{Label: "More Accurate", Model: "large"},
	}
}

// Catalog is the set of known tiers and the subset offered to users.
type Catalog struct {
	tiers   map[string]Tier
	offered []Tier
	def     Tier
}

// NewCatalog builds a catalog. An empty offered list offers every tier; an
// empty default picks the first offered tier.
func NewCatalog(tiers []Tier, offered []string, def string) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier catalog is empty")
	}

	c := &Catalog{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		if _, dup := c.tiers[t.Label]; dup {
			return nil, fmt.Errorf("duplicate tier %q", t.Label)
		}
		c.tiers[t.Label] = t
	}

	if len(offered) == 0 {
		c.offered = append(c.offered, tiers...)
	} else {
		for _, label := range offered {
			t, err := c.Lookup(label)
			if err != nil {
				return nil, fmt.Errorf("offered: %w", err)
			}
			c.offered = append(c.offered, t)
		}
	}

	if def == "" {
		c.def = c.offered[0]
		return c, nil
	}
	for _, t := range c.offered {
		if t.Label == def {
			c.def = t
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: default tier %q is not offered", ErrUnknownTier, def)
}

// Offered returns the tiers a user may pick, in display order.
func (c *Catalog) Offered() []Tier {
	out := make([]Tier, len(c.offered))
	copy(out, c.offered)
	return out
}

// Default returns the preselected tier.
func (c *Catalog) Default() Tier { return c.def }

// Lookup finds any catalog tier by label.
func (c *Catalog) Lookup(label string) (Tier, error) {
	t, ok := c.tiers[label]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, label)
	}
	return t, nil
}

// Resolve maps a user selection to an offered tier. An empty label selects the default.
func (c *Catalog) Resolve(label string) (Tier, error) {
	if label == "" {
		return c.def, nil
	}
	for _, t := range c.offered {
		if t.Label == label {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %q is not offered", ErrUnknownTier, label)
}
