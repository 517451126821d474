package catalog

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/viper"
)

// Load reads the catalog from a YAML file. Bundle codes default to a slug of
// the display name when omitted so "E-Commerce" becomes "e-commerce".
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return New(DefaultBundles())
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var raw struct {
		Bundles []Bundle `mapstructure:"bundles"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i := range raw.Bundles {
		if strings.TrimSpace(raw.Bundles[i].Code) == "" {
			raw.Bundles[i].Code = slug.Make(raw.Bundles[i].Name)
		} else {
			raw.Bundles[i].Code = slug.Make(raw.Bundles[i].Code)
		}
	}

	return New(raw.Bundles)
}

// DefaultBundles is the built-in catalog used when no catalog file is
// configured. Prices are monthly, in cents.
func DefaultBundles() []Bundle {
	return []Bundle{
		{
			Code:         "creator",
			Name:         "Creator",
			BasePrice:    2900,
			Capabilities: []string{"social.schedule", "marketplace.sell_templates"},
			Quotas: map[string]int64{
				"social.posts":     500,
				"media.uploads_mb": 10_240,
			},
		},
		{
			Code:         "ecommerce",
			Name:         "E-Commerce",
			BasePrice:    4900,
			Capabilities: []string{"store.checkout", "store.digital_products"},
			Quotas: map[string]int64{
				"store.products": 1_000,
				"store.orders":   5_000,
			},
		},
		{
			Code:         "social",
			Name:         "Social Inbox",
			BasePrice:    3900,
			Capabilities: []string{"social.inbox", "social.schedule"},
			Quotas: map[string]int64{
				"social.posts":    1_000,
				"social.replies":  10_000,
				"social.accounts": 25,
			},
		},
		{
			Code:         "crm",
			Name:         "CRM",
			BasePrice:    5900,
			Capabilities: []string{"crm.pipelines", "crm.automations"},
			Quotas: map[string]int64{
				"crm.contacts":    50_000,
				"crm.emails":      20_000,
				"crm.automations": 100,
			},
		},
		{
			Code:         "courses",
			Name:         "Courses",
			BasePrice:    4900,
			Capabilities: []string{"courses.publish", "marketplace.sell_templates"},
			Quotas: map[string]int64{
				"courses.students":  2_500,
				"courses.video_min": 6_000,
			},
		},
		{
			Code:         "bookings",
			Name:         "Bookings",
			BasePrice:    2900,
			Capabilities: []string{"bookings.calendar"},
			Quotas: map[string]int64{
				"bookings.appointments": 2_000,
			},
		},
	}
}
