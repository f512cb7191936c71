package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qlandys/paradex-auth/pkg/paradexapi"
)

func TestFindPosition(t *testing.T) {
	positions := []paradexapi.Position{
		{ID: "p-1", Market: "BTC-USD-PERP"},
		{ID: "p-2", Market: "ETH-USD-PERP"},
	}

	p, ok := findPosition(positions, "eth-usd-perp")
	assert.True(t, ok)
	assert.Equal(t, "p-2", p.ID)

	_, ok = findPosition(positions, "SOL-USD-PERP")
	assert.False(t, ok)
}
