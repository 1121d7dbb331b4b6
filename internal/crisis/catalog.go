package crisis

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
)

// Catalog is the YAML resource catalog:
//
//	regions:
//	  US:
//	    suicidal:
//	      - name: 988 Suicide & Crisis Lifeline
//	        contact: "988"
//	    general:
//	      - name: Emergency services
//	        contact: "911"
//	  default:
//	    general:
//	      - name: Find a Helpline
//	        url: https://findahelpline.com
type Catalog struct {
	Regions map[string]map[string][]Resource `yaml:"regions"`
}

// ParseCatalog decodes and validates a catalog. Region keys are
// upper-cased except "default".
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw Catalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing crisis catalog: %w", err)
	}
	if len(raw.Regions) == 0 {
		return nil, fmt.Errorf("%w: catalog has no regions", ErrNoResources)
	}
	c := &Catalog{Regions: make(map[string]map[string][]Resource, len(raw.Regions))}
	for region, cats := range raw.Regions {
		key := normalizeRegion(region)
		for cat, list := range cats {
			for i, res := range list {
				if strings.TrimSpace(res.Name) == "" {
					return nil, fmt.Errorf("crisis catalog: %s/%s[%d] has no name", region, cat, i)
				}
				if res.Contact == "" && res.URL == "" && res.Note == "" {
					return nil, fmt.Errorf("crisis catalog: %s/%s[%d] %q has no contact, url or note", region, cat, i, res.Name)
				}
			}
		}
		c.Regions[key] = cats
	}
	return c, nil
}

func normalizeRegion(region string) string {
	region = strings.TrimSpace(region)
	if strings.EqualFold(region, DefaultRegion) || region == "" {
		return DefaultRegion
	}
	return strings.ToUpper(region)
}

// Lookup returns resources for region and category. A missing category
// falls back to "general" within the region, and a missing region falls
// back to "default".
func (c *Catalog) Lookup(region string, category detector.CrisisCategory) []Resource {
	if c == nil {
		return nil
	}
	for _, r := range []string{normalizeRegion(region), DefaultRegion} {
		cats, ok := c.Regions[r]
		if !ok {
			continue
		}
		if res := cats[string(category)]; len(res) > 0 {
			return append([]Resource(nil), res...)
		}
		if res := cats[GeneralCategory]; len(res) > 0 {
			return append([]Resource(nil), res...)
		}
	}
	return nil
}

// StaticRouter serves a fixed catalog.
type StaticRouter struct {
	Catalog *Catalog
}

// ResourcesFor implements Router.
func (s StaticRouter) ResourcesFor(_ context.Context, region string, category detector.CrisisCategory) ([]Resource, error) {
	res := s.Catalog.Lookup(region, category)
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: region %q category %q", ErrNoResources, region, category)
	}
	return res, nil
}
