package domains

import (
	"strings"

	"go.uber.org/zap"
)

// defaultFreemailDomains covers the providers seen most often in lead data.
// The list is configurable so deployments can extend it for regional providers.
var defaultFreemailDomains = []string{
	"gmail.com",
	"yahoo.com",
	"hotmail.com",
	"outlook.com",
	"icloud.com",
	"aol.com",
	"protonmail.com",
	"live.com",
	"msn.com",
}

// Classifier categorizes lead email addresses by their domain
type Classifier struct {
	freemail map[string]struct{}
	logger   *zap.Logger
}

// NewClassifier creates a classifier. Passing no domains uses the built-in
// freemail list.
func NewClassifier(freemailDomains []string, logger *zap.Logger) *Classifier {
	if len(freemailDomains) == 0 {
		freemailDomains = defaultFreemailDomains
	}

	// Normalize domains (lowercase)
	freemail := make(map[string]struct{}, len(freemailDomains))
	for _, domain := range freemailDomains {
		freemail[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}

	if logger != nil {
		logger.Debug("Initialized email domain classifier",
			zap.Int("freemail_domains", len(freemail)))
	}

	return &Classifier{
		freemail: freemail,
		logger:   logger,
	}
}

// IsFreemail reports whether the address belongs to a free email provider
func (c *Classifier) IsFreemail(email string) bool {
	domain, ok := domainOf(email)
	if !ok {
		return false
	}
	_, found := c.freemail[domain]
	return found
}

// domainOf extracts the lowercased domain from an email address
func domainOf(email string) (string, bool) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}
