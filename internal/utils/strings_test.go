package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "#Breakout",
			expected: []string{"#Breakout"},
		},
		{
			name:     "two values",
			input:    "#Breakout, #SL moved",
			expected: []string{"#Breakout", "#SL moved"},
		},
		{
			name:     "three values with varied spacing",
			input:    "#Scalp,  #partial , #News",
			expected: []string{"#Scalp", "#partial", "#News"},
		},
		{
			name:     "no spaces after comma",
			input:    "#Swing,#Pullback",
			expected: []string{"#Swing", "#Pullback"},
		},
		{
			name:     "trailing comma",
			input:    "#Range,",
			expected: []string{"#Range"},
		},
		{
			name:     "leading comma",
			input:    ",#Reversal",
			expected: []string{"#Reversal"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,#Breakout,,#News,,",
			expected: []string{"#Breakout", "#News"},
		},
		{
			name:     "value with internal spaces preserved",
			input:    "#TP moved, #SL moved",
			expected: []string{"#TP moved", "#SL moved"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJoinCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: "",
		},
		{
			name:     "single value",
			input:    []string{"#Breakout"},
			expected: "#Breakout",
		},
		{
			name:     "multiple values",
			input:    []string{"#Breakout", "#SL moved"},
			expected: "#Breakout,#SL moved",
		},
		{
			name:     "skips empty entries",
			input:    []string{"#Breakout", "", "  ", "#News"},
			expected: "#Breakout,#News",
		},
		{
			name:     "trims whitespace",
			input:    []string{"  #Scalp  ", "#Swing"},
			expected: "#Scalp,#Swing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := JoinCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseCSV_RoundTrip(t *testing.T) {
	tags := []string{"#Breakout", "#SL moved", "#partial"}
	assert.Equal(t, tags, ParseCSV(JoinCSV(tags)))
}

func TestParseCSV_PreservesInput(t *testing.T) {
	// Verify that the function doesn't modify the input string
	input := "#Breakout, #News"
	originalInput := input

	_ = ParseCSV(input)

	assert.Equal(t, originalInput, input, "input should not be modified")
}
