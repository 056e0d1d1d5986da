package main

import (
	"testing"

	"github.com/pbaille/cvvault/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHeadline(t *testing.T) {
	exp := domain.Experience{Title: "Olympiad", Category: domain.CategoryMath, Date: "2024-03-01", Reflection: "r"}
	assert.Equal(t, "[Math] Olympiad (2024-03-01) *", headline(exp))

	edu := domain.Education{School: "Hill", Qualification: "IB"}
	assert.Equal(t, "Hill - IB", headline(edu))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b...", truncate("a\nbcdefgh", 6))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("123456789abc"))
	assert.Equal(t, "abc", shortID("abc"))
}
