package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryOptions_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultQueryLimit, QueryOptions{}.EffectiveLimit())
	assert.Equal(t, DefaultQueryLimit, QueryOptions{Limit: -5}.EffectiveLimit())
	assert.Equal(t, 50, QueryOptions{Limit: 50}.EffectiveLimit())
	assert.Equal(t, MaxQueryLimit, QueryOptions{Limit: 1_000_000}.EffectiveLimit())
}

func TestQueryOptions_EffectiveTimeout(t *testing.T) {
	assert.Equal(t, DefaultQueryTimeout, QueryOptions{}.EffectiveTimeout())
	assert.Equal(t, DefaultQueryTimeout, QueryOptions{Timeout: -1}.EffectiveTimeout())
	assert.Equal(t, 5*time.Second, QueryOptions{Timeout: 5}.EffectiveTimeout())
	assert.Equal(t, MaxQueryTimeout, QueryOptions{Timeout: 3600}.EffectiveTimeout())
}
