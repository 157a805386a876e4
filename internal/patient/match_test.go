package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	first, last, ok := SplitName("  Mary Anne   Smith ")
	require.True(t, ok)
	assert.Equal(t, "Mary", first)
	assert.Equal(t, "Smith", last)

	_, _, ok = SplitName("Cher")
	assert.False(t, ok)
}

func TestMatch(t *testing.T) {
	patients := []Patient{
		{ID: 1, FirstName: "Jane", LastName: "Doe", DOB: "1990-04-12"},
		{ID: 2, FirstName: "Ravi", LastName: "Kumar", DOB: "04/12/1985"},
		{ID: 3, FirstName: "jane", LastName: "DOE", DOB: "1991-01-01"},
		{ID: 4, FirstName: "Asha", LastName: "Rao", DOB: "not a date"},
	}

	tests := []struct {
		name   string
		input  string
		dob    string
		wantID int
		found  bool
	}{
		{"case insensitive with dob", "JANE doe", "1990-04-12", 1, true},
		{"dob picks second namesake", "Jane Doe", "1991-01-01", 3, true},
		{"no dob returns first in order", "Jane Doe", "", 1, true},
		{"unparseable dob means no constraint", "Jane Doe", "12th April", 1, true},
		{"middle names ignored", "Jane Q Public Doe", "", 1, true},
		{"stored dob in us layout", "Ravi Kumar", "1985-04-12", 2, true},
		{"dob mismatch", "Ravi Kumar", "1985-04-13", 0, false},
		{"unnormalizable stored dob never matches a dob", "Asha Rao", "1970-01-01", 0, false},
		{"unnormalizable stored dob matches without dob", "Asha Rao", "", 4, true},
		{"single token", "Jane", "", 0, false},
		{"unknown", "John Smith", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Match(patients, tt.input, tt.dob)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				require.NotNil(t, p)
				assert.Equal(t, tt.wantID, p.ID)
			} else {
				assert.Nil(t, p)
			}
		})
	}
}

func TestParseDOB(t *testing.T) {
	d, ok := ParseDOB(" 2001-02-03 ")
	require.True(t, ok)
	assert.Equal(t, 2001, d.Year())

	_, ok = ParseDOB("03/02/2001")
	assert.False(t, ok)
}
