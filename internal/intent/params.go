package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	lakh  = 100_000
	crore = 10_000_000
)

var (
	// amount followed by a unit: "5 lakh", "2.5L", "50,000 rs", "40000₹"
	budgetUnitAfter = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(lakhs?|lacs?|lac|l|crores?|cr|rupees?|rupee|rs\.?|inr|₹)(?:\b|\s|$)`)
	// currency marker before the amount: "₹50000", "Rs. 75,000", "INR 1,20,000"
	budgetUnitBefore = regexp.MustCompile(`(?i)(₹|\brs\.?|\brupees?|\binr)\s*(\d[\d,]*(?:\.\d+)?)`)
	budgetBare       = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	// "top 5", "best 10": a count, not an amount
	countPrefix      = regexp.MustCompile(`(?i)\b(?:top|best|first|last)\s*$`)
)

// minBareBudget is the smallest unitless number read as rupees. Anything
// below it is a count ("3 caterers") rather than a wedding budget.
const minBareBudget = 1000

// ParseBudget extracts a budget in rupees. Amounts that carry a unit win over
// bare numbers so "top 5 caterers under 2 lakh" reads as 200000. Lakh and
// crore amounts are scaled. Bare numbers are only taken as rupees when they
// are at least minBareBudget and do not follow "top" or "best". Returns nil
// when the text holds no usable amount.
func ParseBudget(text string) *int64 {
	var best *budgetHit
	consider := func(h budgetHit) {
		if best == nil || h.pos < best.pos {
			best = &h
		}
	}
	if m := budgetUnitAfter.FindStringSubmatchIndex(text); m != nil {
		consider(budgetHit{pos: m[0], amount: text[m[2]:m[3]], unit: text[m[4]:m[5]]})
	}
	if m := budgetUnitBefore.FindStringSubmatchIndex(text); m != nil {
		consider(budgetHit{pos: m[0], amount: text[m[4]:m[5]], unit: text[m[2]:m[3]]})
	}
	if best == nil {
		best = bareBudget(text)
		if best == nil {
			return nil
		}
	}

	n, err := strconv.ParseFloat(strings.ReplaceAll(best.amount, ",", ""), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	switch unit := strings.ToLower(strings.TrimSpace(best.unit)); {
	case strings.HasPrefix(unit, "l"):
		n *= lakh
	case strings.HasPrefix(unit, "cr"):
		n *= crore
	}
	v := int64(math.Round(n))
	return &v
}

type budgetHit struct {
	pos    int
	amount string
	unit   string
}

func bareBudget(text string) *budgetHit {
	for _, loc := range budgetBare.FindAllStringIndex(text, -1) {
		if countPrefix.MatchString(text[:loc[0]]) {
			continue
		}
		amount := text[loc[0]:loc[1]]
		n, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
		if err != nil || n < minBareBudget {
			continue
		}
		return &budgetHit{pos: loc[0], amount: amount}
	}
	return nil
}
