package common

import (
	"strings"

	"github.com/ternarybob/fides/internal/models"
)

// categorySeedPaths maps each monitoring category to the site paths
// that typically publish its claims.
var categorySeedPaths = map[models.Category][]string{
	models.CategorySecurity: {"/security", "/trust", "/compliance"},
	models.CategoryPrivacy:  {"/privacy", "/terms"},
	models.CategorySLA:      {"/sla", "/status"},
	models.CategoryPricing:  {"/pricing"},
}

// DeriveSeedURLs expands a company domain and its enabled categories
// into the seed URLs to watch. Categories are expanded in the order
// given and duplicate URLs are dropped.
func DeriveSeedURLs(domain string, categories []models.Category) []string {
	base := seedBase(domain)
	if base == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var urls []string
	for _, category := range categories {
		for _, path := range categorySeedPaths[category] {
			seedURL := joinPath(base, path)
			if _, ok := seen[seedURL]; ok {
				continue
			}
			seen[seedURL] = struct{}{}
			urls = append(urls, seedURL)
		}
	}
	return urls
}

// seedBase normalizes a company domain into the base URL seed paths
// are appended to. A bare domain becomes https://{domain}; a domain
// that already carries a scheme is used verbatim.
func seedBase(domain string) string {
	d := strings.TrimSuffix(strings.TrimSpace(domain), "/")
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		return d
	}
	return "https://" + d
}

// joinPath safely joins path segments, preventing duplicate slashes
func joinPath(segments ...string) string {
	result := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if result == "" {
			result = seg
		} else if result[len(result)-1] == '/' {
			if seg[0] == '/' {
				result += seg[1:]
			} else {
				result += seg
			}
		} else {
			if seg[0] == '/' {
				result += seg
			} else {
				result += "/" + seg
			}
		}
	}
	return result
}
