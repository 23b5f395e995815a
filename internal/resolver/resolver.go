// Package resolver maps raw phone numbers onto the providers able to charge them.
package resolver

import (
	"fmt"
	"strings"

	"momopay/internal/domain"
)

const (
	MinDigits = 10
	maxDigits = 15
)

// Catalog is the part of the provider registry the resolver reads.
type Catalog interface {
	ListProviders() []domain.ProviderDescriptor
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	NormalizedPhone    string
	CandidateProviders []domain.ProviderDescriptor
	Ambiguous          bool
}

// Resolver is stateless apart from its configuration and is safe for concurrent use.
type Resolver struct {
	catalog        Catalog
	defaultCountry string
}

func New(catalog Catalog, defaultCountry string) *Resolver {
	return &Resolver{catalog: catalog, defaultCountry: strings.ToUpper(defaultCountry)}
}

// Resolve normalizes phone and returns the providers whose prefix set covers it.
func (r *Resolver) Resolve(phone, countryHint string) (Resolution, error) {
	normalized, err := r.Normalize(phone, countryHint)
	if err != nil {
		return Resolution{}, err
	}
	var candidates []domain.ProviderDescriptor
	for _, p := range r.catalog.ListProviders() {
		for _, prefix := range p.Prefixes {
			if strings.HasPrefix(normalized, prefix) {
				candidates = append(candidates, p)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: no provider covers %s", domain.ErrUnsupportedRegion, domain.MaskPhone(normalized))
	}
	return Resolution{
		NormalizedPhone:    normalized,
		CandidateProviders: candidates,
		Ambiguous:          len(candidates) > 1,
	}, nil
}

// Normalize returns phone as "+<calling code><subscriber digits>".
// Applying it to its own output returns the same value.
func (r *Resolver) Normalize(phone, countryHint string) (string, error) {
	plus, digits := sanitize(phone)
	if len(digits) < MinDigits {
		return "", fmt.Errorf("%w: %d digits, need at least %d", domain.ErrInvalidPhoneFormat, len(digits), MinDigits)
	}
	switch {
	case plus:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	default:
		country := strings.ToUpper(strings.TrimSpace(countryHint))
		if country == "" {
			country = r.defaultCountry
		}
		code, ok := CallingCode(country)
		if !ok {
			return "", fmt.Errorf("%w: unknown country %q", domain.ErrInvalidInput, country)
		}
		// A national number carries at most one trunk zero; a number already starting
		// with the calling code and long enough is treated as international.
		if strings.HasPrefix(digits, code) && len(digits)-len(code) >= 8 {
			break
		}
		digits = code + strings.TrimPrefix(digits, "0")
	}
	if len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %d digits exceeds E.164 maximum", domain.ErrInvalidPhoneFormat, len(digits))
	}
	return "+" + digits, nil
}

// sanitize drops every character except digits; plus reports a leading '+'.
func sanitize(phone string) (plus bool, digits string) {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for _, ch := range phone {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '+' && b.Len() == 0:
			plus = true
		}
	}
	return plus, b.String()
}
