package catalog

import (
	"strings"

	"omnistock/internal"
	"omnistock/internal/util"
)

// Snapshot is a read-only view of one user's catalog that keeps catalog order.
type Snapshot struct {
	variants  []internal.CatalogVariant
	byVariant map[string]int
	byParent  map[string][]int
}

func NewSnapshot(variants []internal.CatalogVariant) *Snapshot {
	s := &Snapshot{
		variants:  make([]internal.CatalogVariant, 0, len(variants)),
		byVariant: map[string]int{},
		byParent:  map[string][]int{},
	}
	for _, v := range variants {
		key := util.NormalizeSKU(v.SKUVariant)
		if key == "" {
			continue
		}
		if _, dup := s.byVariant[key]; dup {
			continue
		}
		idx := len(s.variants)
		s.variants = append(s.variants, v)
		s.byVariant[key] = idx
		if parent := util.NormalizeSKU(v.SKU); parent != "" {
			s.byParent[parent] = append(s.byParent[parent], idx)
		}
	}
	return s
}

func (s *Snapshot) Len() int { return len(s.variants) }

func (s *Snapshot) Variants() []internal.CatalogVariant { return s.variants }

// Lookup finds a variant by its normalized variant SKU.
func (s *Snapshot) Lookup(skuVariant string) (*internal.CatalogVariant, bool) {
	idx, ok := s.byVariant[util.NormalizeSKU(skuVariant)]
	if !ok {
		return nil, false
	}
	return &s.variants[idx], true
}

// ByParent returns the variants of a parent SKU in catalog order.
func (s *Snapshot) ByParent(sku string) []*internal.CatalogVariant {
	idxs := s.byParent[util.NormalizeSKU(sku)]
	out := make([]*internal.CatalogVariant, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, &s.variants[idx])
	}
	return out
}

// FirstWithPrefix returns the first variant whose SKU starts with prefix.
func (s *Snapshot) FirstWithPrefix(prefix string) (*internal.CatalogVariant, bool) {
	prefix = strings.ToUpper(prefix)
	for i := range s.variants {
		if strings.HasPrefix(util.NormalizeSKU(s.variants[i].SKUVariant), prefix) {
			return &s.variants[i], true
		}
	}
	return nil, false
}
