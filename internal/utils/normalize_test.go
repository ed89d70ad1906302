package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidNotificationNum(t *testing.T) {
	cases := map[string]bool{
		"4112345678":  true,
		"4100000000":  true,
		"4212345678":  false,
		"411234567":   false,
		"41123456789": false,
		"41abcdefgh":  false,
		"":            false,
	}
	for input, want := range cases {
		assert.Equal(t, want, ValidNotificationNum(input), input)
	}
}

func TestNormalizeNotificationNum(t *testing.T) {
	assert.Equal(t, "4112345678", NormalizeNotificationNum(" 41-1234 5678 "))
}

func TestValidMapLink(t *testing.T) {
	assert.True(t, ValidMapLink("https://maps.google.com/?q=51.1,71.4"))
	assert.True(t, ValidMapLink("https://www.google.com/maps/place/Substation+4"))
	assert.True(t, ValidMapLink("https://maps.app.goo.gl/AbCdEf"))
	assert.True(t, ValidMapLink("https://goo.gl/maps/xyz"))
	assert.False(t, ValidMapLink("https://example.com/maps"))
	assert.False(t, ValidMapLink("not a url"))
}

func TestTrimOptional(t *testing.T) {
	blank := "   "
	value := "  x "
	assert.Nil(t, TrimOptional(nil))
	assert.Nil(t, TrimOptional(&blank))
	assert.Equal(t, "x", *TrimOptional(&value))
	assert.Equal(t, "EQ-100", NormalizeEquipmentNumber(" eq-100 "))
}
