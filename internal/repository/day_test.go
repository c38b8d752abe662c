// internal/repository/day_test.go
package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsDayIsTimezoneIndependent(t *testing.T) {
	east := time.FixedZone("UTC+3", 3*3600)

	assert.Equal(t, "2026-07-14", asDay(time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-07-14", asDay(time.Date(2026, 7, 14, 23, 30, 0, 0, east)))
}
