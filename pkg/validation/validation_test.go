package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Symbol string  `json:"symbol" validate:"required,max=8"`
	Qty    float64 `json:"qty" validate:"gt=0"`
	Side   string  `json:"side,omitempty" validate:"omitempty,oneof=BUY SELL"`
	Limit  int     `json:"limit" default:"50"`
}

func TestStructAppliesDefaultsAndValidates(t *testing.T) {
	s := &sample{Symbol: "ESZ4", Qty: 1}
	require.NoError(t, Struct(context.Background(), s))
	assert.Equal(t, 50, s.Limit)

	err := Struct(context.Background(), &sample{Qty: -1, Side: "HOLD"})
	errs := FromError(err)
	require.Len(t, errs, 3)
	fields := map[string]string{}
	for _, fe := range errs {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "ERR_REQUIRED", fields["symbol"])
	assert.Equal(t, "ERR_GT", fields["qty"])
	assert.Equal(t, "ERR_ONEOF", fields["side"])
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	var s sample
	err := DecodeStrict(strings.NewReader(`{"symbol":"ESZ4","qty":1,"leverage":100}`), &s)
	errs := FromError(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNKNOWN_FIELD", errs[0].Code)
	assert.Equal(t, "leverage", errs[0].Field)
}

func TestDecodeStrictReportsTypeAndSyntaxErrors(t *testing.T) {
	var s sample
	errs := FromError(DecodeStrict(strings.NewReader(`{"symbol":"ESZ4","qty":"lots"}`), &s))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_TYPE", errs[0].Code)
	assert.Equal(t, "qty", errs[0].Field)

	errs = FromError(DecodeStrict(strings.NewReader(`{"symbol":`), &s))
	assert.Equal(t, "ERR_INVALID_JSON", errs[0].Code)

	errs = FromError(DecodeStrict(strings.NewReader(`{"symbol":"A","qty":1}{}`), &s))
	assert.Equal(t, "ERR_INVALID_JSON", errs[0].Code)
}
