// Package plans loads the subscription plan catalog.
package plans

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/jimdaga/mediecho/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Billing intervals
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Price is one purchasable option of a plan
type Price struct {
	Interval string `yaml:"interval" json:"interval"`
	PriceID  string `yaml:"price_id" json:"priceId"`
	Amount   int64  `yaml:"amount" json:"price"`
	Currency string `yaml:"currency" json:"currency"`
}

// Plan describes a subscription tier
type Plan struct {
	Name        models.Plan `yaml:"name" json:"name"`
	DisplayName string      `yaml:"display_name" json:"displayName"`
	Description string      `yaml:"description" json:"description"`
	SortOrder   int         `yaml:"sort_order" json:"-"`
	Features    []string    `yaml:"features" json:"features"`
	Prices      []Price     `yaml:"prices" json:"prices"`
}

// Price returns the option for interval
func (p *Plan) Price(interval string) (Price, bool) {
	for _, price := range p.Prices {
		if price.Interval == interval {
			return price, true
		}
	}
	return Price{}, false
}

type catalogFile struct {
	Plans []*Plan `yaml:"plans"`
}

// LoadCatalogFile reads a plan catalog from path
func LoadCatalogFile(path string) ([]*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return ParseCatalog(bytes.NewReader(data))
}

// ParseCatalog decodes a plan catalog with strict validation.
// Unknown YAML fields are rejected, and every plan must name a known tier.
func ParseCatalog(r io.Reader) ([]*Plan, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown YAML keys to catch typos

	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}

	for _, p := range file.Plans {
		if !models.ValidPlan(p.Name) {
			return nil, fmt.Errorf("plan catalog has unknown plan: %q", p.Name)
		}
		if p.DisplayName == "" {
			p.DisplayName = string(p.Name)
		}
		for i := range p.Prices {
			if p.Prices[i].Interval != IntervalMonthly && p.Prices[i].Interval != IntervalYearly {
				return nil, fmt.Errorf("plan %s has unknown interval: %q", p.Name, p.Prices[i].Interval)
			}
			if p.Prices[i].Currency == "" {
				p.Prices[i].Currency = "usd"
			}
		}
	}

	return file.Plans, nil
}
