package keyid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"1234ABCD", true},
		{"deadbeef", true},
		{"DeAdBeEf", true},
		{"1234ABC", false},
		{"1234ABCDE", false},
		{"1234ABCG", false},
		{" 1234ABCD", false},
		{"1234ABCD\n", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.id), "Valid(%q)", tt.id)
	}
}

func TestParseCSVList(t *testing.T) {
	assert.Equal(t, []string{"1234ABCD", "5678EF01"}, ParseCSVList(ptr("1234ABCD,bad,5678EF01")))
	assert.Equal(t, []string{"5678EF01", "1234ABCD"}, ParseCSVList(ptr("5678EF01,1234ABCD")))

	empty := ParseCSVList(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	assert.Empty(t, ParseCSVList(ptr("")))
	assert.Empty(t, ParseCSVList(ptr("nope, 1234ABCD")))
}

func TestCheckProvided(t *testing.T) {
	got, ok := CheckProvided(ptr("1234ABCD"), []string{"FFFFFFFF"})
	assert.True(t, ok)
	assert.Equal(t, "1234ABCD", got)

	got, ok = CheckProvided(nil, []string{"FFFFFFFF"})
	assert.True(t, ok)
	assert.Equal(t, "FFFFFFFF", got)

	got, ok = CheckProvided(ptr("short"), []string{"FFFFFFFF"})
	assert.True(t, ok)
	assert.Equal(t, "FFFFFFFF", got)

	_, ok = CheckProvided(nil, []string{})
	assert.False(t, ok)

	_, ok = CheckProvided(nil, []string{"bogus"})
	assert.False(t, ok)
}
