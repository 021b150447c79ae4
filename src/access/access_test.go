package access

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeniedErrorMatching(t *testing.T) {
	err := fmt.Errorf("vote: %w", Deny(AlreadyVoted, "for"))

	assert.ErrorIs(t, err, &DeniedError{Reason: AlreadyVoted})
	assert.False(t, errors.Is(err, &DeniedError{Reason: VotingClosed}))

	d, ok := AsDenied(err)
	assert.True(t, ok)
	assert.Equal(t, AlreadyVoted, d.Reason)
	assert.Equal(t, "for", d.Detail)
	assert.Equal(t, "denied: already_voted: for", d.Error())

	_, ok = AsDenied(errors.New("other"))
	assert.False(t, ok)
}

func TestActorRoles(t *testing.T) {
	a := Actor{ID: "1", Roles: []string{"10", "20"}}
	assert.True(t, a.HasRole(""))
	assert.True(t, a.HasRole("20"))
	assert.NoError(t, a.RequireRole("10"))
	assert.ErrorIs(t, a.RequireRole("30"), &DeniedError{Reason: MissingRole})

	assert.True(t, a.IsStaff([]string{"5", "20"}))
	assert.ErrorIs(t, a.RequireStaff([]string{"5"}), &DeniedError{Reason: NotStaff})
	assert.NoError(t, Actor{Staff: true}.RequireStaff(nil))
}
