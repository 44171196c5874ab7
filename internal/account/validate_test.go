package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("ana@clinic.co"))
	assert.False(t, ValidEmail("ana@clinic"))
	assert.False(t, ValidEmail("@clinic.co"))
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+57 300 123 4567"))
	assert.True(t, ValidPhone("(601) 555-0199"))
	assert.False(t, ValidPhone("12"))
}

func TestValidNamePart(t *testing.T) {
	assert.True(t, ValidNamePart("José"))
	assert.True(t, ValidNamePart("O'Neil-Smith"))
	assert.False(t, ValidNamePart("J"))
	assert.False(t, ValidNamePart("Ana1"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@clinic.co", NormalizeEmail("  Ana@Clinic.CO "))
}
