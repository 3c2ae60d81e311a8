package compose

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"vendor-chat-backend/internal/vendor"
)

// formatINR renders a rupee amount with Indian digit grouping, e.g. ₹5,00,000.
func formatINR(v float64) string {
	n := int64(v + 0.5)
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		s = strings.Join(groups, ",") + "," + tail
	}
	if neg {
		return "-₹" + s
	}
	return "₹" + s
}

func priceRange(min, max *float64) string {
	switch {
	case min != nil && max != nil && *min == *max:
		return formatINR(*min)
	case min != nil && max != nil:
		return formatINR(*min) + " to " + formatINR(*max)
	case min != nil:
		return "from " + formatINR(*min)
	case max != nil:
		return "up to " + formatINR(*max)
	}
	return ""
}

func ratingText(v vendor.VendorRecord) string {
	r := v.Rating
	if r == nil {
		r = v.AvgRating
	}
	if r == nil {
		return ""
	}
	out := strconv.FormatFloat(*r, 'f', -1, 64) + "/5"
	if v.RatingCount != nil && *v.RatingCount > 0 {
		out += fmt.Sprintf(" from %d reviews", *v.RatingCount)
	}
	return out
}

// summaryLine joins the price and rating facts that are known.
func summaryLine(v vendor.VendorRecord) string {
	var parts []string
	if p := priceRange(v.PriceMin, v.PriceMax); p != "" {
		parts = append(parts, "Price: "+p)
	}
	if r := ratingText(v); r != "" {
		parts = append(parts, "Rating: "+r)
	}
	return strings.Join(parts, " · ")
}

// where renders "category, locality, city" with blanks skipped.
func where(v vendor.VendorRecord) string {
	var parts []string
	for _, s := range []string{v.Category, titleCase(v.Locality), v.City} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func descriptor(v vendor.VendorRecord) string {
	d := strings.TrimSpace(v.ShortDescription)
	if v.IsVeg != nil && *v.IsVeg && !strings.Contains(strings.ToLower(d), "veg") {
		if d == "" {
			return "Pure veg"
		}
		d += " (pure veg)"
	}
	return d
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	return strings.TrimRight(string(r), " .,;") + "…"
}

// categoryNouns covers canonical categories that do not read as a plural
// noun with a trailing "s".
var categoryNouns = map[string]string{
	"makeup": "makeup artists",
	"dj":     "DJs",
}

// plural turns a canonical category like "caterer" into "caterers".
func plural(category string) string {
	if category == "" {
		return "vendors"
	}
	if noun, ok := categoryNouns[strings.ToLower(category)]; ok {
		return noun
	}
	if strings.HasSuffix(category, "s") {
		return category
	}
	return category + "s"
}
