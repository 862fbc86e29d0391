package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNationalID(t *testing.T) {
	assert.True(t, NationalID("1234567890"))
	assert.True(t, NationalID(" 1234567890 "))

	assert.False(t, NationalID("123456789"), "9 digits")
	assert.False(t, NationalID("12345678901"), "11 digits")
	assert.False(t, NationalID("not-an-id"))
	assert.False(t, NationalID("12345a7890"))
	assert.False(t, NationalID(""))
}

func TestPhone(t *testing.T) {
	assert.True(t, Phone("0512345678"))
	assert.True(t, Phone("+966512345678"))
	assert.True(t, Phone("966512345678"))
	assert.True(t, Phone("512345678"))
	assert.True(t, Phone("landline-nonsense, 0512345678"), "any valid entry suffices")
	assert.True(t, Phone("05 1234 5678"))

	assert.False(t, Phone("0412345678"), "not a mobile prefix")
	assert.False(t, Phone("05123"), "too short")
	assert.False(t, Phone(""))
	assert.False(t, Phone(" , , "))
}

func TestEmail(t *testing.T) {
	assert.True(t, Email("parent@example.com"))
	assert.True(t, Email("bad-entry, parent@example.com"))

	assert.False(t, Email("not-an-email"))
	assert.False(t, Email("missing@tld"))
	assert.False(t, Email(""))
}

func TestSchoolAgeDOB(t *testing.T) {
	now := time.Now().UTC()

	tenYears := now.AddDate(-10, 0, 0)
	assert.True(t, SchoolAgeDOB(&tenYears))

	tooYoung := now.AddDate(-2, 0, 0)
	assert.False(t, SchoolAgeDOB(&tooYoung))

	tooOld := now.AddDate(-30, 0, 0)
	assert.False(t, SchoolAgeDOB(&tooOld))

	assert.False(t, SchoolAgeDOB(nil))
	var zero time.Time
	assert.False(t, SchoolAgeDOB(&zero))
}
