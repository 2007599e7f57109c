package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/steamrent/rental-server-go/internal/errors"
)

func TestParseRentDuration(t *testing.T) {
	cases := []struct {
		name string
		text string
		want time.Duration
	}{
		{"russian hours and minutes sum", "1 час 10 минут", 70 * time.Minute},
		{"english days", "3 days", 3 * 24 * time.Hour},
		{"english single day", "1 day", 24 * time.Hour},
		{"russian minutes", "Аренда 30 минут", 30 * time.Minute},
		{"russian abbreviated minutes", "120 мин", 120 * time.Minute},
		{"russian hours", "аренда на 2 часа", 2 * time.Hour},
		{"russian short hour", "3ч", 3 * time.Hour},
		{"russian day", "1 сутки аренды", 24 * time.Hour},
		{"russian days genitive", "5 дней", 5 * 24 * time.Hour},
		{"mixed languages", "1 day 2 hours", 26 * time.Hour},
		{"no space before unit", "45мин", 45 * time.Minute},
		{"unit buried in sentence", "Elden Ring аренда 12 часов гарантия", 12 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRentDuration(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects text without any duration", func(t *testing.T) {
		_, err := ParseRentDuration("no time here")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParseFailure))
	})

	t.Run("does not mistake a game title for a duration", func(t *testing.T) {
		_, err := ParseRentDuration("7 Days to Die аренда")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParseFailure))
	})

	t.Run("title word does not suppress a real duration elsewhere", func(t *testing.T) {
		got, err := ParseRentDuration("7 Days to Die аренда 2 часа")
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, got)
	})

	t.Run("day inside a longer word is not a unit", func(t *testing.T) {
		_, err := ParseRentDuration("CS:GO day pass holidays 2024")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParseFailure))
	})

	t.Run("game word is never a unit", func(t *testing.T) {
		_, err := ParseRentDuration("2 game bundle / 2 игра")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParseFailure))
	})

	t.Run("unit glued to a word is rejected", func(t *testing.T) {
		_, err := ParseRentDuration("прочь 5 минуточку")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParseFailure))
	})
}
