package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDimensionsEqualIgnoresOrder(t *testing.T) {
	a := []Dimension{
		{Name: "X", Interpretation: "signed", Size: 4},
		{Name: "Y", Interpretation: "signed", Size: 4},
	}
	b := []Dimension{
		{Name: "Y", Interpretation: "signed", Size: 4},
		{Name: "X", Interpretation: "signed", Size: 4},
	}

	assert.True(t, DimensionsEqual(a, b))
}

func TestDimensionsEqualExactMatch(t *testing.T) {
	a := []Dimension{{Name: "X", Interpretation: "signed", Size: 4}}

	assert.False(t, DimensionsEqual(a, []Dimension{{Name: "X", Interpretation: "signed", Size: 8}}))
	assert.False(t, DimensionsEqual(a, []Dimension{{Name: "X", Interpretation: "unsigned", Size: 4}}))
	assert.False(t, DimensionsEqual(a, []Dimension{{Name: "x", Interpretation: "signed", Size: 4}}))
	assert.False(t, DimensionsEqual(a, nil))
}

func TestSortDimensionsDoesNotMutate(t *testing.T) {
	dims := []Dimension{
		{Name: "Z", Interpretation: "signed", Size: 4},
		{Name: "A", Interpretation: "unsigned", Size: 2},
	}
	sorted := SortDimensions(dims)

	assert.Equal(t, "A", sorted[0].Name)
	assert.Equal(t, "Z", dims[0].Name)
}

func TestOutputSchemaMatches(t *testing.T) {
	out := OutputSchema{
		Pcid:       7,
		Dimensions: GreyhoundReadDimensions(),
		Scales:     [3]float64{0.01, 0.01, 0.01},
		Offsets:    [3]float64{50, 50, 5},
	}

	assert.True(t, out.Matches([3]float64{0.01, 0.01, 0.01}, [3]float64{50, 50, 5}, GreyhoundReadDimensions()))
	assert.False(t, out.Matches([3]float64{0.1, 0.1, 0.1}, [3]float64{50, 50, 5}, GreyhoundReadDimensions()))
	assert.False(t, out.Matches([3]float64{0.01, 0.01, 0.01}, [3]float64{0, 0, 0}, GreyhoundReadDimensions()))
	assert.False(t, out.Matches([3]float64{0.01, 0.01, 0.01}, [3]float64{50, 50, 5}, GreyhoundInfoDimensions()))
}

func TestRoundOffsets(t *testing.T) {
	assert.Equal(t, [3]float64{1.23, -4.57, 0}, RoundOffsets([3]float64{1.234, -4.567, 0.0001}))
}

func TestPointSize(t *testing.T) {
	assert.Equal(t, 21, PointSize(GreyhoundReadDimensions()))
	assert.Equal(t, 33, PointSize(GreyhoundInfoDimensions()))
	assert.Equal(t, 0, PointSize(nil))
}
