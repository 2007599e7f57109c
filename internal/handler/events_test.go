package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOrderID(t *testing.T) {
	t.Run("finds the order reference in a payment message", func(t *testing.T) {
		assert.Equal(t, "ABC123", extractOrderID("Покупатель оплатил заказ #ABC123."))
	})

	t.Run("accepts hyphenated ids", func(t *testing.T) {
		assert.Equal(t, "X1-2Y", extractOrderID("заказ #X1-2Y оплачен"))
	})

	t.Run("empty when no reference present", func(t *testing.T) {
		assert.Empty(t, extractOrderID("просто сообщение"))
	})
}

func TestExtractQuantity(t *testing.T) {
	t.Run("reads the unit count", func(t *testing.T) {
		assert.Equal(t, 3, extractQuantity("Elden Ring, 3 шт."))
	})

	t.Run("without spacing", func(t *testing.T) {
		assert.Equal(t, 2, extractQuantity("2шт"))
	})

	t.Run("defaults to one", func(t *testing.T) {
		assert.Equal(t, 1, extractQuantity("Elden Ring аренда 1 час"))
	})
}
