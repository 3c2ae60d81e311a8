// Package intent classifies chat utterances into vendor sub-intents and
// extracts search parameters from free text.
package intent

import (
	"regexp"
	"strings"
)

type Route string

const (
	RouteGeneral Route = "general"
	RouteGuide   Route = "guide"
	RouteDetails Route = "details"
	RouteReviews Route = "reviews"
	RouteSearch  Route = "search"
)

// Classification is the routing decision plus every parameter parsed from the text.
type Classification struct {
	Route    Route
	Category string
	Locality string
	Budget   *int64
	// VendorName is set for the details and reviews routes when the trigger
	// phrase is followed by a name.
	VendorName string
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// Classifier holds compiled patterns. It is immutable after construction and
// safe for concurrent use.
type Classifier struct {
	lex        Lexicon
	vendorRe   *regexp.Regexp
	cityRe     *regexp.Regexp
	guideRe    *regexp.Regexp
	detailsRe  *regexp.Regexp
	reviewsRe  *regexp.Regexp
	categoryRe *regexp.Regexp
	detailsArg *regexp.Regexp
	reviewsArg *regexp.Regexp
	categories []namedPattern
	localities []namedPattern
}

func NewClassifier(lex Lexicon) *Classifier {
	c := &Classifier{
		lex:       lex,
		vendorRe:  phraseRegexp(lex.VendorKeywords),
		cityRe:    phraseRegexp(lex.CityKeywords),
		guideRe:   phraseRegexp(lex.GuideTriggers),
		detailsRe: phraseRegexp(lex.DetailsTriggers),
		reviewsRe: phraseRegexp(lex.ReviewTriggers),
	}
	var aliases []string
	for _, cat := range lex.Categories {
		aliases = append(aliases, cat.Aliases...)
		aliases = append(aliases, cat.Name)
		c.categories = append(c.categories, namedPattern{name: cat.Name, re: phraseRegexp(append([]string{cat.Name}, cat.Aliases...))})
	}
	c.categoryRe = phraseRegexp(aliases)
	for _, loc := range lex.Localities {
		c.localities = append(c.localities, namedPattern{name: strings.ToLower(strings.TrimSpace(loc)), re: phraseRegexp([]string{loc})})
	}
	if c.detailsRe != nil {
		c.detailsArg = regexp.MustCompile(c.detailsRe.String() + `\s*(.*)$`)
	}
	if c.reviewsRe != nil {
		c.reviewsArg = regexp.MustCompile(c.reviewsRe.String() + `(?:\s+(?:for|of|on|about))?\s*(.*)$`)
	}
	return c
}

func (c *Classifier) Lexicon() Lexicon { return c.lex }

func matches(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}

// IsVendorQuery reports whether the text mentions a vendor keyword or a served city.
func (c *Classifier) IsVendorQuery(text string) bool {
	return matches(c.vendorRe, text) || matches(c.cityRe, text)
}

// IsGuideQuery reports a recommend/best/top/guide phrasing that names a vendor category.
func (c *Classifier) IsGuideQuery(text string) bool {
	return matches(c.guideRe, text) && matches(c.categoryRe, text)
}

func (c *Classifier) IsMoreDetailsQuery(text string) bool {
	return matches(c.detailsRe, text)
}

func (c *Classifier) IsReviewsQuery(text string) bool {
	return matches(c.reviewsRe, text)
}

// Classify routes the text. Precedence is guide, more-details, reviews, then
// generic search. A guide phrasing that also carries a budget or a locality
// is a concrete search, not a request for a guide.
func (c *Classifier) Classify(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" || !c.IsVendorQuery(text) {
		return Classification{Route: RouteGeneral}
	}
	out := Classification{
		Route:    RouteSearch,
		Category: c.ParseCategory(text),
		Locality: c.ParseLocality(text),
		Budget:   ParseBudget(text),
	}
	switch {
	case c.IsGuideQuery(text) && out.Budget == nil && !c.hasSpecificLocality(out.Locality):
		out.Route = RouteGuide
	case c.IsMoreDetailsQuery(text):
		out.Route = RouteDetails
		out.VendorName = c.DetailsName(text)
	case c.IsReviewsQuery(text):
		out.Route = RouteReviews
		out.VendorName = c.ReviewsName(text)
	}
	return out
}

// hasSpecificLocality treats the served city itself as no constraint, so
// "best caterers in mumbai" still reads as a guide request.
func (c *Classifier) hasSpecificLocality(loc string) bool {
	if loc == "" {
		return false
	}
	return !matches(c.cityRe, loc)
}

// ParseCategory returns the canonical name of the first configured category
// mentioned in the text, or "".
func (c *Classifier) ParseCategory(text string) string {
	for _, cat := range c.categories {
		if matches(cat.re, text) {
			return strings.TrimSuffix(strings.ToLower(cat.name), "s")
		}
	}
	return ""
}

// ParseLocality returns the first configured locality mentioned in the text, or "".
func (c *Classifier) ParseLocality(text string) string {
	for _, loc := range c.localities {
		if matches(loc.re, text) {
			return loc.name
		}
	}
	return ""
}

// DetailsName extracts the vendor name following a more-details trigger.
func (c *Classifier) DetailsName(text string) string {
	return extractName(c.detailsArg, text)
}

// ReviewsName extracts the vendor name following a reviews trigger.
func (c *Classifier) ReviewsName(text string) string {
	return extractName(c.reviewsArg, text)
}

var leadingArticle = regexp.MustCompile(`(?i)^(?:the)\s+`)

func extractName(re *regexp.Regexp, text string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	name := strings.TrimSpace(m[1])
	name = strings.Trim(name, " \t\"'“”‘’?.!,:;")
	name = leadingArticle.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}
