package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		digits string
	}{
		{"local with formatting", "(11) 91234-5678", "5511912345678"},
		{"international with plus", "+55 11 91234-5678", "5511912345678"},
		{"already a chat id", "5511912345678@c.us", "5511912345678"},
		{"landline", "11 3456-7890", "551134567890"},
		{"surrounding spaces", "  5521998765432 ", "5521998765432"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digits, chatID, err := NormalizeNumber(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.digits, digits)
			assert.Equal(t, tt.digits+"@c.us", chatID)
		})
	}
}

func TestNormalizeNumberRejects(t *testing.T) {
	for _, input := range []string{"", "abc", "123", "99999999999999999"} {
		t.Run(input, func(t *testing.T) {
			_, _, err := NormalizeNumber(input)
			assert.ErrorIs(t, err, apierrors.ErrRecipientInvalid)
		})
	}
}

func TestIsGroupID(t *testing.T) {
	assert.True(t, IsGroupID("120363041234567890@g.us"))
	assert.False(t, IsGroupID("@g.us"))
	assert.False(t, IsGroupID("5511912345678@c.us"))
	assert.False(t, IsGroupID("120363041234567890"))
}

func TestMaskNumber(t *testing.T) {
	assert.Equal(t, "55*******5678", MaskNumber("5511912345678"))
	assert.Equal(t, "****", MaskNumber("5511"))
}
