package grammar

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Operand is the right-hand side of a test: String, Int, Float, Bool or Location.
type Operand interface {
	operand()
}

type String string

type Int int64

// Float always renders with a fractional part so that it stays a Float when parsed back.
type Float float64

type Bool bool

// Location is a point and a radius, written lng,lat,rad.
type Location struct {
	Lng float64
	Lat float64
	Rad float64
}

func (String) operand()   {}
func (Int) operand()      {}
func (Float) operand()    {}
func (Bool) operand()     {}
func (Location) operand() {}

// numberOperand turns the text of a number literal into an Int, or a Float when the
// literal has a fractional part or does not fit in 64 bits.
func numberOperand(text string) (Operand, error) {
	if !strings.Contains(text, ".") {
		i, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return Int(i), nil
		}
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return nil, err
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	return Float(f), nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatCoordinate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// quoteString renders s as a JSON string literal without HTML escaping.
func quoteString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a string cannot fail
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
