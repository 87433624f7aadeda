package pipeline

import (
	"strings"

	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/util"
)

type Matcher struct {
	catalog *catalog.Snapshot
}

func NewMatcher(snapshot *catalog.Snapshot) *Matcher {
	return &Matcher{catalog: snapshot}
}

// Match resolves a marketplace SKU and optional variation text to a catalog variant.
//
// An exact variant SKU wins. With variation text, variants of the parent SKU are
// narrowed by color and size; a lone parent candidate is taken as-is, and a SKU
// with no parent candidates may still prefix a variant SKU. Otherwise the first
// variant of the parent SKU in catalog order is used, and reported for review
// when other variants shared that parent.
func (m *Matcher) Match(sku, variation string) internal.MatchResult {
	normalized := util.NormalizeSKU(sku)
	if normalized == "" {
		return notFound()
	}

	if v, ok := m.catalog.Lookup(normalized); ok {
		return matched(v, internal.TierDirect, 0)
	}

	candidates := m.catalog.ByParent(normalized)
	if variationText := strings.ToUpper(strings.TrimSpace(variation)); variationText != "" {
		switch len(candidates) {
		case 0:
			if v, ok := m.catalog.FirstWithPrefix(normalized + "-"); ok {
				return matched(v, internal.TierPrefix, 0)
			}
			return notFound()
		case 1:
			return matched(candidates[0], internal.TierSingleCandidate, 1)
		}

		for _, c := range candidates {
			color := strings.ToUpper(strings.TrimSpace(c.Color))
			size := strings.ToUpper(strings.TrimSpace(c.Size))
			if color != "" && size != "" && strings.Contains(variationText, color) && strings.Contains(variationText, size) {
				return matched(c, internal.TierVariation, len(candidates))
			}
			if util.NormalizeSKU(c.SKUVariant) == variationText {
				return matched(c, internal.TierVariation, len(candidates))
			}
		}
	}

	if len(candidates) == 0 {
		return notFound()
	}
	res := matched(candidates[0], internal.TierParentFallback, len(candidates))
	if len(candidates) > 1 {
		res.Status = internal.MatchReview
	}
	return res
}

func matched(v *internal.CatalogVariant, tier internal.MatchTier, candidates int) internal.MatchResult {
	return internal.MatchResult{Status: internal.MatchOK, Tier: tier, Variant: v, Candidates: candidates}
}

func notFound() internal.MatchResult {
	return internal.MatchResult{Status: internal.MatchNotFound, Tier: internal.TierNone}
}
