package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityForOperation(t *testing.T) {
	tests := []struct {
		op     string
		entity EntityKey
	}{
		{"sum", EntityCounters},
		{"count_unique", EntitySets},
		{"avg", EntityDistributions},
		{"count", EntityDistributions},
		{"max", EntityDistributions},
		{"min", EntityDistributions},
		{"p50", EntityDistributions},
		{"p95", EntityDistributions},
		{"p99", EntityDistributions},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			entity, err := EntityForOperation(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.entity, entity)
		})
	}
}

func TestEntityForOperation_Unknown(t *testing.T) {
	_, err := EntityForOperation("median")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestOperationsBelongToExactlyOneEntity(t *testing.T) {
	seen := make(map[string]EntityKey)
	for _, entity := range Entities() {
		for _, op := range AvailableOperations(entity) {
			if other, ok := seen[op]; ok {
				t.Fatalf("operation %s found on %s and %s", op, other, entity)
			}
			seen[op] = entity
		}
	}

	assert.Len(t, seen, len(Operations()))
	for _, op := range Operations() {
		entity, err := EntityForOperation(op)
		require.NoError(t, err)
		assert.Equal(t, seen[op], entity)
	}
}

func TestAvailableOperations_SortedCopy(t *testing.T) {
	ops := AvailableOperations(EntityDistributions)
	assert.Equal(t, []string{"avg", "count", "max", "min", "p50", "p75", "p90", "p95", "p99"}, ops)

	ops[0] = "mutated"
	assert.Equal(t, "avg", AvailableOperations(EntityDistributions)[0])
}

func TestEntityForMetricType(t *testing.T) {
	for _, mt := range MetricTypes {
		entity, err := EntityForMetricType(mt)
		require.NoError(t, err)

		back, err := MetricTypeForEntity(entity)
		require.NoError(t, err)
		assert.Equal(t, mt, back)
	}

	_, err := EntityForMetricType("gauge")
	assert.ErrorIs(t, err, ErrUnknownMetricType)
}

func TestAggregateFunction(t *testing.T) {
	fn, err := AggregateFunction(EntityDistributions, "p95")
	require.NoError(t, err)
	assert.Equal(t, "quantilesIf(0.95)", fn)

	fn, err = AggregateFunction(EntityCounters, "sum")
	require.NoError(t, err)
	assert.Equal(t, "sumIf", fn)

	_, err = AggregateFunction(EntityCounters, "p95")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestParseField(t *testing.T) {
	op, name, err := ParseField("sum(sentry.sessions.session)")
	require.NoError(t, err)
	assert.Equal(t, "sum", op)
	assert.Equal(t, "sentry.sessions.session", name)

	op, name, err = ParseField("count_unique(sentry.sessions.user)")
	require.NoError(t, err)
	assert.Equal(t, "count_unique", op)
	assert.Equal(t, "sentry.sessions.user", name)

	for _, bad := range []string{"", "sum", "sum()", "sum(a b)", "(x)", "sum(x) "} {
		_, _, err := ParseField(bad)
		assert.ErrorIs(t, err, ErrInvalidField, bad)
	}
}

func TestValidTagName(t *testing.T) {
	assert.True(t, ValidTagName("session.status"))
	assert.True(t, ValidTagName("release"))
	assert.False(t, ValidTagName("bad tag"))
	assert.False(t, ValidTagName(""))
}

func TestDefaultAggregate(t *testing.T) {
	v, ok := DefaultAggregate("sum")
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	v, ok = DefaultAggregate("p50")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = DefaultAggregate("median")
	assert.False(t, ok)
}

func TestIsInvalidParams(t *testing.T) {
	assert.True(t, IsInvalidParams(ErrMetricNotFound))
	assert.True(t, IsInvalidParams(ErrInvalidParams))
	assert.False(t, IsInvalidParams(ErrMultiEntityDerivedMetric))
}

func TestMetricMetaWithTagKeys_JSON(t *testing.T) {
	meta := MetricMetaWithTagKeys{
		MetricMeta: MetricMeta{
			Name:       "response_time",
			Type:       TypeDistribution,
			Operations: AvailableOperations(EntityDistributions),
		},
		Tags: []Tag{{Key: "environment"}, {Key: "release"}},
	}

	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "response_time", decoded["name"])
	assert.Equal(t, "distribution", decoded["type"])
	assert.Nil(t, decoded["unit"])
	assert.Len(t, decoded["tags"], 2)
}
