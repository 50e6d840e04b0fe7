package storage

import "time"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Profile is a targetable entity and the features it carries.
type Profile struct {
	ID        string           `json:"id" gorm:"primaryKey" lucene:"explicit"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	CreatedAt time.Time        `json:"created_at"`
	Features  []ProfileFeature `json:"features" gorm:"foreignKey:ProfileID" lucene:"-"`
}

// ProfileFeature is one named feature of a profile. A feature sets any combination of a
// value (string, number or boolean), a time in Unix seconds and a location.
type ProfileFeature struct {
	ProfileID string   `json:"-" gorm:"primaryKey"`
	Name      string   `json:"name" gorm:"primaryKey"`
	StrValue  *string  `json:"str_value,omitempty"`
	NumValue  *float64 `json:"num_value,omitempty"`
	BoolValue *bool    `json:"bool_value,omitempty"`
	Time      *float64 `json:"time,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
}

// Segment is a named, canonicalized targeting query.
type Segment struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Page selects a window of a listing. Cursor is the opaque value returned with the
// previous page.
type Page struct {
	Limit  int
	Cursor string
}

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return p.Limit
	}
}
