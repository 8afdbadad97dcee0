// Package bom turns sold line items into inventory deltas.
package bom

import (
	"sort"

	"venuepos/backend/internal/domain"
)

// Catalog is the product lookup Expand needs.
type Catalog map[string]domain.Product

func NewCatalog(products []domain.Product) Catalog {
	out := make(Catalog, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

// Expand returns the stock deltas one sold line produces. Combos resolve one
// level into their recipe; ingredients missing from the catalog are skipped.
// A plain product only moves when the catalog says it tracks stock.
func Expand(item domain.LineItem, catalog Catalog) []domain.StockDelta {
	if item.IsServiceItem || item.Quantity <= 0 {
		return nil
	}

	if item.IsCombo {
		recipe := item.Recipe
		if len(recipe) == 0 {
			if p, ok := catalog[item.ProductID]; ok {
				recipe = p.Recipe
			}
		}
		out := make([]domain.StockDelta, 0, len(recipe))
		for _, entry := range recipe {
			ingredient, ok := catalog[entry.IngredientID]
			if !ok || entry.QuantityPerUnit <= 0 || ingredient.IsService || ingredient.IsCombo {
				continue
			}
			out = append(out, domain.StockDelta{
				ProductID: entry.IngredientID,
				Qty:       -(entry.QuantityPerUnit * item.Quantity),
			})
		}
		return out
	}

	p, ok := catalog[item.ProductID]
	if !ok || !p.TrackStock || p.IsService {
		return nil
	}
	return []domain.StockDelta{{ProductID: item.ProductID, Qty: -item.Quantity}}
}

// ExpandAll expands every line and merges deltas per product, sorted by id.
func ExpandAll(items []domain.LineItem, catalog Catalog) []domain.StockDelta {
	var all []domain.StockDelta
	for _, item := range items {
		all = append(all, Expand(item, catalog)...)
	}
	return Merge(all)
}

func Merge(deltas []domain.StockDelta) []domain.StockDelta {
	sum := make(map[string]int, len(deltas))
	for _, d := range deltas {
		sum[d.ProductID] += d.Qty
	}
	out := make([]domain.StockDelta, 0, len(sum))
	for id, qty := range sum {
		if qty == 0 {
			continue
		}
		out = append(out, domain.StockDelta{ProductID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
