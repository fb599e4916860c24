package treatment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipientListRejectsDuplicates(t *testing.T) {
	l := &RecipientList{}
	addr, err := l.Add(" a@x.com ")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", addr)

	_, err = l.Add("a@x.com")
	assert.ErrorIs(t, err, ErrDuplicateRecipient)
	_, err = l.Add("A@X.com")
	assert.ErrorIs(t, err, ErrDuplicateRecipient)

	assert.Equal(t, []string{"a@x.com"}, l.Addresses())
}

func TestRecipientListValidatesAddresses(t *testing.T) {
	l := &RecipientList{}
	for _, bad := range []string{"", "plainaddress", "a@", "@x.com", "a@x", "a b@x.com"} {
		_, err := l.Add(bad)
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
	assert.Zero(t, l.Len())

	_, err := l.Add("first.last+pt@clinic.co.uk")
	assert.NoError(t, err)
}

func TestRecipientListRemoveAndRebuild(t *testing.T) {
	l := NewRecipientList("a@x.com", "bad", "b@x.com", "A@x.com")
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, l.Addresses())

	assert.True(t, l.Remove("A@X.COM"))
	assert.False(t, l.Remove("nobody@x.com"))
	assert.Equal(t, []string{"b@x.com"}, l.Addresses())

	var nilList *RecipientList
	assert.Nil(t, nilList.Addresses())
	assert.Zero(t, nilList.Len())
}
