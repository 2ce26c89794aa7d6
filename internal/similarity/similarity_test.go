package similarity

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Hello carrier", "Hello carrier", 100},
		{"both empty", "", "", 100},
		{"one empty", "draft", "", 0},
		{"disjoint", "abc", "xyz", 0},
		{"half", "abcd", "ab", 66.67},
		{"one edit", "kitten", "sitten", 83.33},
		{"unicode runes", "añb", "ab", 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 0.001)
		})
	}
}

func TestRatio_Symmetric(t *testing.T) {
	a := "Offer $2,150 for the ATL to DAL lane"
	b := "Offer $2,050 for the ATL-DAL lane, fuel included"
	assert.Equal(t, Ratio(a, b), Ratio(b, a))
	assert.Greater(t, Ratio(a, b), 50.0)
	assert.Less(t, Ratio(a, b), 100.0)
}

func TestLCSLength(t *testing.T) {
	assert.Equal(t, 4, LCSLength([]rune("ABCBDAB"), []rune("BDCABA")))
	assert.Equal(t, 0, LCSLength(nil, []rune("abc")))
	assert.Equal(t, 3, LCSLength([]rune("abc"), []rune("abc")))
}

func exactRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return math.Round(200*float64(LCSLength(a, b))/float64(total)*100) / 100
}

func TestRatio_PrefixSuffixTrimIsExact(t *testing.T) {
	pairs := [][2]string{
		{"Dear carrier, offer $2,150 today. Regards", "Dear carrier, offer $2,050 today. Regards"},
		{"abcXYZabc", "abcabc"},
		{"aaaa", "aa"},
		{"Pay invoice 1042", "Pay invoice 1042 now"},
	}
	for _, p := range pairs {
		a, b := []rune(p[0]), []rune(p[1])
		assert.Equal(t, exactRatio(a, b), Ratio(p[0], p[1]), "%q vs %q", p[0], p[1])
	}
}

func TestRatio_AboveCellLimitIsLowerBound(t *testing.T) {
	a := []rune(strings.Repeat("net 30 terms, ", 40))
	b := []rune(strings.Repeat("net 45 terms; ", 40))

	exact := exactRatio(a, b)
	approx := ratio(a, b, 1000)
	assert.LessOrEqual(t, approx, exact)
	assert.Greater(t, approx, 0.8*exact)
	assert.Equal(t, exact, ratio(a, b, len(a)*len(b)))
}

func TestRatio_LargeInputsStayBounded(t *testing.T) {
	a := strings.Repeat("ab", 250_000)
	b := strings.Repeat("ba", 250_000)

	start := time.Now()
	score := Ratio(a, b)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, score, 85.0)
	assert.LessOrEqual(t, score, 100.0)

	big := strings.Repeat("x", 1<<20)
	assert.Equal(t, 100.0, Ratio(big, big))
	assert.Equal(t, 0.0, Ratio(big, strings.Repeat("y", 1<<20)))
}
