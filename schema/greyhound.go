package schema

// Canonical Greyhound schemas served by default. Info advertises doubles so
// viewers can derive world coordinates; Read quantizes XYZ to int32 against
// the output schema's scale and offset.

// GreyhoundInfoDimensions is the schema embedded in the info document.
func GreyhoundInfoDimensions() []Dimension {
	return []Dimension{
		{Name: "X", Interpretation: "floating", Size: 8},
		{Name: "Y", Interpretation: "floating", Size: 8},
		{Name: "Z", Interpretation: "floating", Size: 8},
		{Name: "Intensity", Interpretation: "unsigned", Size: 2},
		{Name: "Classification", Interpretation: "unsigned", Size: 1},
		{Name: "Red", Interpretation: "unsigned", Size: 2},
		{Name: "Green", Interpretation: "unsigned", Size: 2},
		{Name: "Blue", Interpretation: "unsigned", Size: 2},
	}
}

// GreyhoundReadDimensions is the default transport schema for read responses.
func GreyhoundReadDimensions() []Dimension {
	return []Dimension{
		{Name: "X", Interpretation: "signed", Size: 4},
		{Name: "Y", Interpretation: "signed", Size: 4},
		{Name: "Z", Interpretation: "signed", Size: 4},
		{Name: "Intensity", Interpretation: "unsigned", Size: 2},
		{Name: "Classification", Interpretation: "unsigned", Size: 1},
		{Name: "Red", Interpretation: "unsigned", Size: 2},
		{Name: "Green", Interpretation: "unsigned", Size: 2},
		{Name: "Blue", Interpretation: "unsigned", Size: 2},
	}
}
