// Package aggregate derives session statistics from the full set of sales and
// expenses recorded against one register session. Nothing is kept between
// calls; every result is rebuilt from the inputs.
package aggregate

import (
	"sort"
	"strings"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/payment"
)

// Recompute is deterministic: any permutation of sales or expenses yields the
// same SessionStats.
func Recompute(registerID string, sales []domain.Sale, expenses []domain.Expense) domain.SessionStats {
	stats := domain.SessionStats{RegisterID: registerID}

	products := make(map[string]*domain.ProductRollup)
	zones := make(map[string]*domain.ZoneRevenue)
	staff := make(map[string]*domain.StaffUtility)

	for _, sale := range sales {
		if registerID != "" && sale.RegisterID != registerID {
			continue
		}
		stats.SalesCount++
		courtesy := sale.IsCourtesy || payment.HasCourtesy(sale.Payments)

		if !courtesy {
			for _, p := range sale.Payments {
				switch payment.Classify(p.Method) {
				case payment.BucketCash:
					stats.CashSalesCents += p.AmountCents
				case payment.BucketQR:
					stats.QRSalesCents += p.AmountCents
				case payment.BucketReservation:
					stats.ReservationSalesCents += p.AmountCents
				case payment.BucketCard:
					stats.CardSalesCents += p.AmountCents
				}
			}
			stats.CashSalesCents -= sale.ChangeCents
		}

		var zone *domain.ZoneRevenue
		var su *domain.StaffUtility
		if !courtesy {
			zoneName := strings.TrimSpace(sale.Zone)
			if zoneName == "" {
				zoneName = domain.DefaultZone
			}
			zone = zones[zoneName]
			if zone == nil {
				zone = &domain.ZoneRevenue{Zone: zoneName}
				zones[zoneName] = zone
			}
			zone.Sales++

			name := strings.TrimSpace(sale.StaffName)
			su = staff[name]
			if su == nil {
				su = &domain.StaffUtility{StaffName: name}
				staff[name] = su
			}
			if sale.StaffID != "" && (su.StaffID == "" || sale.StaffID < su.StaffID) {
				su.StaffID = sale.StaffID
			}
		}

		for _, item := range sale.Items {
			lineTotal := item.TotalCents()
			lineCost := item.CostTotalCents()
			stats.TotalCostOfGoodsCents += lineCost

			pr := rollupFor(products, item)
			pr.CostTotalCents += lineCost
			if courtesy {
				stats.CourtesyTotalCents += lineTotal
				stats.CourtesyCostCents += lineCost
				pr.CourtesyQty += item.Quantity
				pr.CourtesyTotalCents += lineTotal
				continue
			}
			pr.SoldQty += item.Quantity
			pr.SoldTotalCents += lineTotal
			zone.RevenueCents += lineTotal

			utility := lineTotal - lineCost
			su.UtilityCents += utility
			su.SalesCents += lineTotal
			if IsComboCategory(item.Category) {
				su.ComboUtilityCents += utility
				su.ComboSalesCents += lineTotal
			} else {
				su.StandardUtilityCents += utility
				su.StandardSalesCents += lineTotal
			}
		}
	}
	stats.DigitalSalesCents = stats.QRSalesCents + stats.CardSalesCents + stats.ReservationSalesCents

	stats.Expenses = make([]domain.Expense, 0, len(expenses))
	for _, e := range expenses {
		if registerID != "" && e.RegisterID != registerID {
			continue
		}
		stats.TotalExpensesCents += e.AmountCents
		stats.Expenses = append(stats.Expenses, e)
	}
	sort.Slice(stats.Expenses, func(i, j int) bool {
		a, b := stats.Expenses[i], stats.Expenses[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})

	stats.SoldProducts = make([]domain.ProductRollup, 0, len(products))
	for _, p := range products {
		stats.SoldProducts = append(stats.SoldProducts, *p)
	}
	sort.Slice(stats.SoldProducts, func(i, j int) bool {
		a, b := stats.SoldProducts[i], stats.SoldProducts[j]
		if a.SoldTotalCents != b.SoldTotalCents {
			return a.SoldTotalCents > b.SoldTotalCents
		}
		return productKey(a.ProductID, a.Name) < productKey(b.ProductID, b.Name)
	})

	stats.ZoneStats = make([]domain.ZoneRevenue, 0, len(zones))
	for _, z := range zones {
		stats.ZoneStats = append(stats.ZoneStats, *z)
	}
	sort.Slice(stats.ZoneStats, func(i, j int) bool { return stats.ZoneStats[i].Zone < stats.ZoneStats[j].Zone })

	stats.StaffUtility = make([]domain.StaffUtility, 0, len(staff))
	for _, s := range staff {
		stats.StaffUtility = append(stats.StaffUtility, *s)
	}
	sort.Slice(stats.StaffUtility, func(i, j int) bool { return stats.StaffUtility[i].StaffName < stats.StaffUtility[j].StaffName })

	return stats
}

func IsComboCategory(category string) bool {
	return strings.Contains(strings.ToLower(category), domain.ComboCategoryMarker)
}

func rollupFor(products map[string]*domain.ProductRollup, item domain.LineItem) *domain.ProductRollup {
	key := productKey(item.ProductID, item.Name)
	pr := products[key]
	if pr == nil {
		pr = &domain.ProductRollup{ProductID: item.ProductID, Name: item.Name, Category: item.Category}
		products[key] = pr
		return pr
	}
	// keep the smallest label so the result does not depend on input order
	if item.Name < pr.Name {
		pr.Name = item.Name
	}
	if item.Category < pr.Category {
		pr.Category = item.Category
	}
	return pr
}

func productKey(productID string, name string) string {
	if productID != "" {
		return "id:" + productID
	}
	return "name:" + name
}
