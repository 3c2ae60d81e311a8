// Package compose renders vendor results as a prose reply plus the structured
// payload a UI renders as cards. Every fact in either output comes from the
// records passed in; nothing is filled in.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"vendor-chat-backend/internal/stream"
	"vendor-chat-backend/internal/vendor"
)

const Apology = "Sorry, something went wrong while preparing your answer. Please try again."

// Sentinels around the inlined vendor_hits payload for clients that only read text.
const (
	InlineHitsOpen  = "__VENDOR_HITS_JSON__"
	InlineHitsClose = "__END_VENDOR_HITS_JSON__"
)

const (
	reviewSnippetLen = 240
	webSnippetLen    = 200
)

// Reply is one composed answer. Tool is empty when there is no payload.
type Reply struct {
	Text    string
	Tool    string
	Payload any
}

// Narrator rewrites structured facts as prose. It must use only the facts given.
type Narrator interface {
	Narrate(ctx context.Context, instruction string, facts any) (string, error)
}

// Query is the part of the classified request the prose echoes back.
type Query struct {
	Text     string
	Category string
	Locality string
	Budget   *int64
}

type VendorCard struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Category         string   `json:"category,omitempty"`
	City             string   `json:"city,omitempty"`
	PriceMin         *float64 `json:"price_min,omitempty"`
	PriceMax         *float64 `json:"price_max,omitempty"`
	IsVeg            *bool    `json:"is_veg,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	Contact          string   `json:"contact,omitempty"`
	Images           []string `json:"images,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
}

type VendorDetailPayload struct {
	VendorCard
	Locality        string   `json:"locality,omitempty"`
	LongDescription string   `json:"long_description,omitempty"`
	Capacity        *int64   `json:"capacity,omitempty"`
	AvgRating       *float64 `json:"avg_rating,omitempty"`
	RatingCount     *int64   `json:"rating_count,omitempty"`
}

type VendorReviewsPayload struct {
	Vendor        VendorCard      `json:"vendor"`
	Reviews       []vendor.Review `json:"reviews"`
	AverageRating *float64        `json:"average_rating,omitempty"`
}

type GuideSection struct {
	Bucket  vendor.Bucket `json:"bucket"`
	Title   string        `json:"title"`
	Vendors []VendorCard  `json:"vendors"`
}

type GuidePayload struct {
	Category string         `json:"category"`
	Sections []GuideSection `json:"sections"`
}

// WebPayload carries web-search snippets. Source is always "web" so clients
// can mark the block as unverified.
type WebPayload struct {
	Query   string             `json:"query"`
	Source  string             `json:"source"`
	Results []vendor.WebResult `json:"results"`
}

var bucketTitles = map[vendor.Bucket]string{
	vendor.BucketLuxury:   "Luxury picks",
	vendor.BucketVeg:      "Pure veg",
	vendor.BucketRegional: "Regional specialists",
	vendor.BucketBudget:   "Budget friendly",
}

type Composer struct {
	narrator Narrator
	logger   zerolog.Logger
}

type Option func(*Composer)

// WithNarrator routes guide, details and reviews prose through n. A failed
// narration falls back to the template text.
func WithNarrator(n Narrator) Option {
	return func(c *Composer) { c.narrator = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

func New(opts ...Option) *Composer {
	c := &Composer{logger: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func Card(v vendor.VendorRecord) VendorCard {
	return VendorCard{
		ID:               v.ID,
		Name:             v.Name,
		Category:         v.Category,
		City:             v.City,
		PriceMin:         v.PriceMin,
		PriceMax:         v.PriceMax,
		IsVeg:            v.IsVeg,
		Rating:           v.Rating,
		Contact:          v.Contact,
		Images:           v.Images,
		ShortDescription: v.ShortDescription,
	}
}

func Cards(hits []vendor.MergedHit) []VendorCard {
	out := make([]VendorCard, 0, len(hits))
	for _, h := range hits {
		out = append(out, Card(h.VendorRecord))
	}
	return out
}

// Shortlist renders a generic search result. relaxed reports that no hit fit
// the budget and the list is the unfiltered top matches.
func (c *Composer) Shortlist(q Query, hits []vendor.MergedHit, relaxed bool) Reply {
	if len(hits) == 0 {
		return c.NoResults(q)
	}
	var b strings.Builder
	noun := plural(q.Category)
	if len(hits) == 1 {
		noun = strings.TrimSuffix(noun, "s")
	}
	fmt.Fprintf(&b, "Here %s %d %s for \"%s\":", isAre(len(hits)), len(hits), noun, strings.TrimSpace(q.Text))
	if relaxed && q.Budget != nil {
		fmt.Fprintf(&b, "\n\nNone of the listings state a price that fits %s, so these are the closest matches.", formatINR(float64(*q.Budget)))
	}
	for i, h := range hits {
		b.WriteString("\n\n")
		writeVendorParagraph(&b, i+1, h.VendorRecord)
	}
	b.WriteString("\n\n")
	b.WriteString(followUp(hits[0].Name))
	if q.Category == "" {
		b.WriteString("\n\nTip: name a category such as caterers, venues or photographers to narrow these down.")
	}
	return Reply{Text: b.String(), Tool: stream.ToolVendorHits, Payload: Cards(hits)}
}

// NoResults answers a search that found nothing. The empty card list still
// goes out so a client can clear stale cards.
func (c *Composer) NoResults(q Query) Reply {
	text := fmt.Sprintf("I couldn't find any %s matching \"%s\" right now.", plural(q.Category), strings.TrimSpace(q.Text))
	switch {
	case q.Budget != nil || q.Locality != "":
		text += " Try widening the area or the budget."
	case q.Category == "":
		text += " Try naming a category such as caterers or venues."
	}
	return Reply{Text: text, Tool: stream.ToolVendorHits, Payload: []VendorCard{}}
}

func (c *Composer) Details(ctx context.Context, v vendor.VendorRecord) Reply {
	payload := VendorDetailPayload{
		VendorCard:      Card(v),
		Locality:        v.Locality,
		LongDescription: v.LongDescription,
		Capacity:        v.Capacity,
		AvgRating:       v.AvgRating,
		RatingCount:     v.RatingCount,
	}

	var b strings.Builder
	b.WriteString("**" + v.Name + "**")
	if w := where(v); w != "" {
		b.WriteString(" (" + w + ")")
	}
	desc := strings.TrimSpace(v.LongDescription)
	if desc == "" {
		desc = descriptor(v)
	}
	if desc != "" {
		b.WriteString("\n\n" + desc)
	}
	var facts []string
	if p := priceRange(v.PriceMin, v.PriceMax); p != "" {
		facts = append(facts, "Price: "+p)
	}
	if v.Capacity != nil && *v.Capacity > 0 {
		facts = append(facts, fmt.Sprintf("Capacity: up to %d guests", *v.Capacity))
	}
	if r := ratingText(v); r != "" {
		facts = append(facts, "Rating: "+r)
	}
	if v.Contact != "" {
		facts = append(facts, "Contact: "+v.Contact)
	}
	for _, f := range facts {
		b.WriteString("\n- " + f)
	}
	fmt.Fprintf(&b, "\n\nYou can also ask for \"reviews for %s\".", v.Name)

	text := c.narrate(ctx, "Describe this wedding vendor for a couple considering them. Mention price, capacity, rating and contact only if present.", payload, b.String())
	return Reply{Text: text, Tool: stream.ToolVendorDetails, Payload: payload}
}

func (c *Composer) Reviews(ctx context.Context, v vendor.VendorRecord, reviews []vendor.Review) Reply {
	payload := VendorReviewsPayload{
		Vendor:        Card(v),
		Reviews:       reviews,
		AverageRating: averageRating(reviews),
	}
	if payload.Reviews == nil {
		payload.Reviews = []vendor.Review{}
	}
	if payload.AverageRating == nil {
		payload.AverageRating = v.AvgRating
	}

	var b strings.Builder
	if len(reviews) == 0 {
		fmt.Fprintf(&b, "**%s** doesn't have any reviews yet.", v.Name)
		if r := ratingText(v); r != "" {
			b.WriteString(" Its listed rating is " + r + ".")
		}
		return Reply{Text: b.String(), Tool: stream.ToolVendorReviews, Payload: payload}
	}

	fmt.Fprintf(&b, "Here's what couples say about **%s**", v.Name)
	if payload.AverageRating != nil {
		fmt.Fprintf(&b, " (average %s/5 across %d reviews)", trimFloat(*payload.AverageRating), len(reviews))
	}
	b.WriteString(":\n")
	for _, r := range reviews {
		b.WriteString("\n- ")
		if r.Rating != nil {
			b.WriteString("★" + trimFloat(*r.Rating) + "/5 ")
		}
		if r.Author != "" {
			b.WriteString(r.Author + ": ")
		}
		b.WriteString(truncate(r.Body, reviewSnippetLen))
	}

	text := c.narrate(ctx, "Summarise these customer reviews of a wedding vendor in a few sentences. Quote nothing that is not in the reviews.", payload, b.String())
	return Reply{Text: text, Tool: stream.ToolVendorReviews, Payload: payload}
}

// Guide renders the bucketed overview of a category. Buckets are laid out in
// vendor.GuideBuckets order; empty ones are left out.
func (c *Composer) Guide(ctx context.Context, category string, buckets map[vendor.Bucket][]vendor.VendorRecord) Reply {
	payload := GuidePayload{Category: category, Sections: []GuideSection{}}
	for _, bucket := range vendor.GuideBuckets {
		rows := buckets[bucket]
		if len(rows) == 0 {
			continue
		}
		sec := GuideSection{Bucket: bucket, Title: bucketTitles[bucket]}
		for _, v := range rows {
			sec.Vendors = append(sec.Vendors, Card(v))
		}
		payload.Sections = append(payload.Sections, sec)
	}
	if len(payload.Sections) == 0 {
		text := fmt.Sprintf("I don't have enough %s listings to put a guide together yet. Try a search with an area or a budget instead.", strings.TrimSuffix(plural(category), "s"))
		return Reply{Text: text, Tool: stream.ToolGuide, Payload: payload}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's a quick guide to %s:", plural(category))
	var first string
	for _, sec := range payload.Sections {
		b.WriteString("\n\n**" + sec.Title + "**")
		for _, card := range sec.Vendors {
			if first == "" {
				first = card.Name
			}
			b.WriteString("\n- " + card.Name)
			var extra []string
			if p := priceRange(card.PriceMin, card.PriceMax); p != "" {
				extra = append(extra, p)
			}
			if card.Rating != nil {
				extra = append(extra, trimFloat(*card.Rating)+"/5")
			}
			if len(extra) > 0 {
				b.WriteString(" (" + strings.Join(extra, ", ") + ")")
			}
		}
	}
	b.WriteString("\n\n" + followUp(first))

	text := c.narrate(ctx, "Write a short guide to these wedding vendors, grouped by section. Keep each vendor to what the facts state.", payload, b.String())
	return Reply{Text: text, Tool: stream.ToolGuide, Payload: payload}
}

// WebFallback presents web snippets for a vendor the directory does not know.
func (c *Composer) WebFallback(name string, results []vendor.WebResult) Reply {
	if len(results) == 0 {
		return c.NotFound(name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I couldn't find **%s** in our vendor directory, so here is what I found on the web. These results are not from our verified listings:", name)
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&b, "\n\n%d. **%s**", i+1, title)
		if s := truncate(r.Content, webSnippetLen); s != "" {
			b.WriteString("\n   " + s)
		}
		if r.URL != "" {
			b.WriteString("\n   " + r.URL)
		}
	}
	return Reply{
		Text:    b.String(),
		Tool:    stream.ToolWebResults,
		Payload: WebPayload{Query: name, Source: "web", Results: results},
	}
}

func (c *Composer) NotFound(name string) Reply {
	return Reply{Text: fmt.Sprintf("I couldn't find a vendor called \"%s\" in our directory or on the web. Could you check the spelling, or tell me the category and area you're looking in?", name)}
}

func (c *Composer) ClarifyDetails() Reply {
	return Reply{Text: "Which vendor would you like more details on? Tell me the name, for example \"more details on Royal Caterers\"."}
}

func (c *Composer) ClarifyReviews() Reply {
	return Reply{Text: "Which vendor would you like reviews for? Tell me the name, for example \"reviews for Royal Caterers\"."}
}

// InlineHits wraps a payload in the sentinel markers for text-only clients.
func InlineHits(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("compose: encode inline hits: %w", err)
	}
	return "\n\n" + InlineHitsOpen + string(b) + InlineHitsClose, nil
}

func (c *Composer) narrate(ctx context.Context, instruction string, facts any, fallback string) string {
	if c.narrator == nil {
		return fallback
	}
	out, err := c.narrator.Narrate(ctx, instruction, facts)
	if err != nil || strings.TrimSpace(out) == "" {
		c.logger.Warn().Err(err).Msg("narration failed, using template")
		return fallback
	}
	return out
}

func writeVendorParagraph(b *strings.Builder, n int, v vendor.VendorRecord) {
	fmt.Fprintf(b, "%d. **%s**", n, v.Name)
	if w := where(v); w != "" {
		b.WriteString(" (" + w + ")")
	}
	if d := descriptor(v); d != "" {
		b.WriteString("\n   " + d)
	}
	if s := summaryLine(v); s != "" {
		b.WriteString("\n   " + s)
	}
}

func followUp(name string) string {
	return fmt.Sprintf("Want to know more? Ask for \"more details on %s\" or \"reviews for %s\".", name, name)
}

func averageRating(reviews []vendor.Review) *float64 {
	var sum float64
	var n int
	for _, r := range reviews {
		if r.Rating != nil {
			sum += *r.Rating
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*10) / 10
	return &avg
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", f), "0"), ".")
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
