package pricing

import (
	"fmt"
	"math"

	"ms-booking/internal/models"
	"ms-booking/internal/slots"
)

// FullDiscount is the percent at which nothing is payable and approval confirms directly.
const FullDiscount = 100.0

// Quote breaks a booking's price into its parts.
type Quote struct {
	Hours           float64          `json:"hours"`
	PricePerHour    float64          `json:"price_per_hour"`
	HourlySubtotal  float64          `json:"hourly_subtotal"`
	Amenities       []models.Amenity `json:"amenities"`
	AmenitySubtotal float64          `json:"amenity_subtotal"`
	Total           float64          `json:"total"`
}

// ComputeTotal charges every distinct (date, interval) pair once at pricePerHour,
// prorated by minutes, and adds each amenity's flat cost once per booking.
func ComputeTotal(dateSlots []slots.DateSlot, pricePerHour float64, amenities []models.Amenity) float64 {
	return compute(dateSlots, pricePerHour, amenities).Total
}

func compute(dateSlots []slots.DateSlot, pricePerHour float64, amenities []models.Amenity) *Quote {
	var minutes int
	for _, s := range slots.Expand(dateSlots) {
		minutes += s.Interval.End - s.Interval.Start
	}
	hours := float64(minutes) / 60

	var amenityTotal float64
	for _, a := range amenities {
		amenityTotal += a.Cost
	}

	hourly := RoundMinor(hours * pricePerHour)
	amenityTotal = RoundMinor(amenityTotal)
	return &Quote{
		Hours:           hours,
		PricePerHour:    pricePerHour,
		HourlySubtotal:  hourly,
		Amenities:       amenities,
		AmenitySubtotal: amenityTotal,
		Total:           RoundMinor(hourly + amenityTotal),
	}
}

// QuoteFor prices a request against an auditorium's catalog entry. Unknown or
// repeated amenity names are validation errors.
func QuoteFor(auditorium *models.Auditorium, dateSlots []slots.DateSlot, amenityNames []string) (*Quote, error) {
	selected := make([]models.Amenity, 0, len(amenityNames))
	seen := make(map[string]bool, len(amenityNames))
	for _, name := range amenityNames {
		if seen[name] {
			return nil, models.NewValidationError("amenities", fmt.Sprintf("amenity %q selected twice", name))
		}
		seen[name] = true

		am, ok := auditorium.Amenity(name)
		if !ok {
			return nil, models.NewValidationError("amenities", fmt.Sprintf("auditorium %s has no amenity %q", auditorium.ID, name))
		}
		selected = append(selected, am)
	}
	return compute(dateSlots, auditorium.PricePerHour, selected), nil
}

// ApplyDiscount returns total × (1 − percent/100) rounded to the minor unit.
func ApplyDiscount(total, percent float64) (float64, error) {
	if math.IsNaN(percent) || percent < 0 || percent > FullDiscount {
		return 0, models.NewValidationError("discount_percent", "must be between 0 and 100")
	}
	return RoundMinor(total * (1 - percent/100)), nil
}

func IsFullDiscount(percent float64) bool {
	return percent == FullDiscount
}

// RoundMinor rounds to two decimals, half away from zero.
func RoundMinor(v float64) float64 {
	return math.Round(v*100) / 100
}
