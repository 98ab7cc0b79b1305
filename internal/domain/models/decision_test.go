package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from    SignalStatus
		action  string
		want    SignalStatus
		invalid bool
	}{
		{SignalPending, "", SignalPending, false},
		{SignalPending, "WATCH", SignalPending, false},
		{SignalPending, ActionActivate, SignalActive, false},
		{SignalPending, ActionClose, SignalClosed, false},
		{SignalPending, ActionReject, SignalRejected, false},
		{SignalActive, ActionClose, SignalClosed, false},
		{SignalActive, ActionActivate, SignalActive, true},
		{SignalActive, ActionReject, SignalActive, true},
		{SignalClosed, ActionActivate, SignalClosed, true},
		{SignalRejected, ActionClose, SignalRejected, true},
		{SignalClosed, "NOTE", SignalClosed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.action, func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.action)
			assert.Equal(t, tt.want, got)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdentityAnonymous(t *testing.T) {
	var nilID *Identity
	assert.True(t, nilID.Anonymous())
	assert.True(t, (&Identity{}).Anonymous())
	assert.False(t, (&Identity{UserID: "u"}).Anonymous())
}
