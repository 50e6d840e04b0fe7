package grammar

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "canonical spacing",
			query: `f1![value="gold"]&&(f2[loc=2.3,48.8,5]||f3[time>=1700000000])`,
			want:  `f1 ![value = "gold"] && (f2 [loc = 2.3,48.8,5] || f3 [time >= 1700000000])`,
		},
		{
			name:  "single quotes become double quotes",
			query: `f1[value='say "hi"']`,
			want:  `f1 [value = "say \"hi\""]`,
		},
		{
			name:  "redundant parentheses are dropped",
			query: `((f1[value=1]) || (f2[value=2] && f3[value=3]))`,
			want:  `f1 [value = 1] || f2 [value = 2] && f3 [value = 3]`,
		},
		{
			name:  "tests are reordered",
			query: `f1[time<5 loc=1,2,3 value=1.50]`,
			want:  `f1 [value = 1.5 loc = 1,2,3 time < 5]`,
		},
		{
			name:  "duplicate test keeps the last one",
			query: `f1[value=1 value="x"]`,
			want:  `f1 [value = "x"]`,
		},
		{
			name:  "location coordinates written as floats",
			query: `f1[value=10.0,-0.50,3.000]`,
			want:  `f1 [value = 10,-0.5,3]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := Generate(parsed)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate(Parse(%q)) = %q, want %q", tt.query, got, tt.want)
			}
			reparsed, err := Parse(got)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", got, err)
			}
			if !reflect.DeepEqual(reparsed, parsed) {
				t.Errorf("Parse(%q) = %s, want %s", got, repr(reparsed), repr(parsed))
			}
		})
	}
}

var queryTokens = []string{"f1", "[", "]", "!", "value", "time", "loc", "=", ">=", "<", "1", "-2.5", `"a"`, "'b'", "true", "&&", "||", "(", ")", " ", ","}

var stringPool = []string{"gold", "a b", `"`, `'`, `\`, `\"`, "\n", "\t", "é", "日本", "\U0001F600", " ", "<&>", "/", "x"}

// randomTree builds an arbitrary well-formed tree, including shapes the parser never
// produces such as single-child or directly nested logicals.
func randomTree(r *rand.Rand, depth int) Node {
	if depth == 0 || r.Intn(3) == 0 {
		return randomFeature(r)
	}
	l := &Logical{Op: And}
	if r.Intn(2) == 0 {
		l.Op = Or
	}
	for n := 1 + r.Intn(3); n > 0; n-- {
		l.Children = append(l.Children, randomTree(r, depth-1))
	}
	return l
}

func randomFeature(r *rand.Rand) *Feature {
	f := &Feature{Name: []string{"f1", "mkt_sgm", "bought-solar", "_x", "A9"}[r.Intn(5)], Inverted: r.Intn(2) == 0}
	operators := []Operator{Equal, Greater, Less, GreaterOrEqual, LessOrEqual}
	for _, kind := range TestKinds {
		if r.Intn(2) == 0 && (kind != TimeTest || f.HasTest()) {
			continue
		}
		f.SetTest(kind, &Test{Operator: operators[r.Intn(len(operators))], Operand: randomOperand(r)})
	}
	return f
}

func randomOperand(r *rand.Rand) Operand {
	switch r.Intn(5) {
	case 0:
		var b strings.Builder
		for n := 1 + r.Intn(4); n > 0; n-- {
			b.WriteString(stringPool[r.Intn(len(stringPool))])
		}
		return String(b.String())
	case 1:
		return Int(r.Int63() - r.Int63())
	case 2:
		return Float(r.NormFloat64() * 1e6)
	case 3:
		return Bool(r.Intn(2) == 0)
	default:
		return Location{Lng: r.Float64()*360 - 180, Lat: r.Float64()*180 - 90, Rad: r.ExpFloat64()}
	}
}

func TestRoundTrip_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("generated text parses back to the same tree", prop.ForAll(
		func(seed int64) bool {
			tree := randomTree(rand.New(rand.NewSource(seed)), 4)
			text, err := Generate(tree)
			if err != nil {
				return false
			}
			parsed, err := Parse(text)
			if err != nil {
				return false
			}
			again, err := Generate(parsed)
			if err != nil || again != text {
				return false
			}
			reparsed, err := Parse(again)
			return err == nil && reflect.DeepEqual(reparsed, parsed)
		},
		gen.Int64(),
	))

	properties.Property("string operands survive quoting", prop.ForAll(
		func(s string) bool {
			want := eq("f1", String(s))
			text, err := Generate(want)
			if err != nil {
				return false
			}
			got, err := Parse(text)
			return err == nil && reflect.DeepEqual(got, want)
		},
		gen.AnyString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.Property("numbers keep their kind and value", prop.ForAll(
		func(i int64, f float64) bool {
			want := NewAnd(eq("i", Int(i)), eq("f", Float(f)))
			text, err := Generate(want)
			if err != nil {
				return false
			}
			got, err := Parse(text)
			return err == nil && reflect.DeepEqual(got, want)
		},
		gen.Int64(),
		gen.Float64(),
	))

	properties.Property("arbitrary input yields a tree or a syntax error", prop.ForAll(
		func(s string) bool {
			n, err := Parse(s)
			if err != nil {
				var syntaxErr *SyntaxError
				return n == nil && errors.As(err, &syntaxErr) && syntaxErr.Offset <= len([]rune(s))
			}
			_, err = Generate(n)
			return err == nil
		},
		gen.OneGenOf(
			gen.AnyString(),
			gen.SliceOf(gen.IntRange(0, len(queryTokens)-1)).Map(func(idx []int) string {
				var b strings.Builder
				for _, i := range idx {
					b.WriteString(queryTokens[i])
				}
				return b.String()
			}),
		),
	))

	properties.TestingRun(t)
}
