// ABOUTME: Tests for the admin CLI's query-string and formatting helpers

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendQuery(t *testing.T) {
	q := appendQuery("", "capability", "go-dev")
	assert.Equal(t, "?capability=go-dev", q)

	q = appendQuery(q, "status", "pending")
	assert.Equal(t, "?capability=go-dev&status=pending", q)

	// Values are escaped.
	assert.Equal(t, "?boundary=a+b", appendQuery("", "boundary", "a b"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 12))
	assert.Equal(t, "a-very-lo...", truncate("a-very-long-identifier", 12))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
