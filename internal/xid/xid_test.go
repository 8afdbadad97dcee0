package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUsesPrefix(t *testing.T) {
	a := New("sale")
	b := New("sale")
	assert.True(t, strings.HasPrefix(a, "sale-"))
	assert.NotEqual(t, a, b)
}

func TestSettlementKeyIgnoresOrder(t *testing.T) {
	k1 := SettlementKey("venue", []string{"po-2", "po-1"})
	k2 := SettlementKey("venue", []string{" po-1", "po-2 "})
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, SettlementKey("other", []string{"po-1", "po-2"}))
	assert.Empty(t, SettlementKey("venue", []string{" "}))
}
