package payment

import (
	"strings"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/money"
)

type Bucket string

const (
	BucketCash        Bucket = "cash"
	BucketQR          Bucket = "qr"
	BucketCard        Bucket = "card"
	BucketReservation Bucket = "reservation"
	BucketCourtesy    Bucket = "courtesy"
)

// Classify maps a free-form tender name onto a reporting bucket. Unknown
// names count as card.
func Classify(method string) Bucket {
	m := strings.ToLower(strings.TrimSpace(method))
	switch {
	case strings.Contains(m, "efectivo"), strings.Contains(m, "cash"):
		return BucketCash
	case strings.Contains(m, "qr"):
		return BucketQR
	case strings.Contains(m, "reserva"):
		return BucketReservation
	case strings.Contains(m, "cortes"), strings.Contains(m, "courtesy"):
		return BucketCourtesy
	default:
		return BucketCard
	}
}

func IsCourtesy(method string) bool {
	return Classify(method) == BucketCourtesy
}

func HasCourtesy(payments []domain.Payment) bool {
	for _, p := range payments {
		if IsCourtesy(p.Method) {
			return true
		}
	}
	return false
}

// AddTender appends one tender to the accumulated list. A courtesy tender
// must stand alone, and the tendered total never exceeds money.MaxCents.
func AddTender(accumulated []domain.Payment, p domain.Payment) ([]domain.Payment, error) {
	if p.AmountCents <= 0 {
		return accumulated, domain.ErrInvalidAmount
	}
	var paid int64
	for _, prior := range accumulated {
		paid += prior.AmountCents
	}
	if _, ok := money.Add(paid, p.AmountCents); !ok {
		return accumulated, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(p.Method) == "" {
		return accumulated, domain.ErrInvalidAmount
	}
	if HasCourtesy(accumulated) {
		return accumulated, domain.ErrCourtesyConflict
	}
	if IsCourtesy(p.Method) && len(accumulated) > 0 {
		return accumulated, domain.ErrCourtesyConflict
	}
	out := make([]domain.Payment, len(accumulated), len(accumulated)+1)
	copy(out, accumulated)
	return append(out, p), nil
}

// Build runs every tender through AddTender in order.
func Build(tenders []domain.Payment) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range tenders {
		next, err := AddTender(out, p)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// Reconcile totals the tenders against target. An under-funded courtesy only
// settles when the caller confirmed it.
func Reconcile(payments []domain.Payment, targetCents int64, confirmPartialCourtesy bool) domain.Settlement {
	var paid int64
	for _, p := range payments {
		paid += p.AmountCents
	}
	courtesy := HasCourtesy(payments)
	change := paid - targetCents
	if change < 0 || courtesy {
		change = 0
	}
	settled := paid >= targetCents
	if courtesy && !settled && confirmPartialCourtesy {
		settled = true
	}
	return domain.Settlement{
		TotalPaidCents: paid,
		ChangeCents:    change,
		Settled:        settled,
		IsCourtesy:     courtesy,
	}
}

// SaleTotal is what the sale actually earned.
func SaleTotal(s domain.Settlement) int64 {
	if s.IsCourtesy {
		return 0
	}
	return s.TotalPaidCents - s.ChangeCents
}
