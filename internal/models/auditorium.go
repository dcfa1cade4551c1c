package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Amenity struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

type Auditorium struct {
	bun.BaseModel `bun:"table:auditoriums"`

	ID           string    `bun:"id,pk" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	PricePerHour float64   `bun:"price_per_hour,notnull" json:"price_per_hour"`
	Amenities    []Amenity `bun:"amenities,type:jsonb" json:"amenities"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (a *Auditorium) Amenity(name string) (Amenity, bool) {
	for _, am := range a.Amenities {
		if am.Name == name {
			return am, true
		}
	}
	return Amenity{}, false
}
