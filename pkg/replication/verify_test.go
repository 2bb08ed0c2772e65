package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replica"
)

func seedRows(n int, name string) []replica.Row {
	rows := make([]replica.Row, n)
	for i := range rows {
		rows[i] = replica.Row{"id": int64(i + 1), "name": fmt.Sprintf("%s-%d", name, i+1)}
	}
	return rows
}

func TestVerifyDetectsCountDifference(t *testing.T) {
	var buf bytes.Buffer
	p, s := newPair()
	p.Seed("t", seedRows(10, "r")...)
	s.Seed("t", seedRows(7, "r")...)

	v := NewVerifier(p, s, WithLogger(logging.NewZapLogger(&buf, logging.InfoLevel)))
	status, err := v.VerifySynchronization(context.Background(), "t")
	require.NoError(t, err)

	assert.Equal(t, "t", status.Table)
	assert.Equal(t, int64(10), status.PrimaryCount)
	assert.Equal(t, int64(7), status.SecondaryCount)
	assert.False(t, status.Synchronized)
	assert.Equal(t, int64(3), status.Difference)
	assert.False(t, status.ContentChecked)

	assert.Contains(t, buf.String(), "SYNC STATUS t: Primary=10, Secondary=7, Synchronized=false")
}

func TestVerifyNegativeDifference(t *testing.T) {
	p, s := newPair()
	p.Seed("t", seedRows(2, "r")...)
	s.Seed("t", seedRows(5, "r")...)

	status, err := NewVerifier(p, s).VerifySynchronization(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), status.Difference)
	assert.False(t, status.Synchronized)
}

func TestCountOnlyMissesContentDrift(t *testing.T) {
	p, s := newPair()
	p.Seed("t", replica.Row{"id": 1, "name": "b"})
	s.Seed("t", replica.Row{"id": 1, "name": "a"})
	v := NewVerifier(p, s)
	ctx := context.Background()

	status, err := v.VerifySynchronization(ctx, "t")
	require.NoError(t, err)
	assert.True(t, status.Synchronized, "count-only check cannot see changed values")

	status, err = v.VerifySynchronization(ctx, "t", WithContentCheck())
	require.NoError(t, err)
	assert.True(t, status.ContentChecked)
	assert.False(t, status.Synchronized)
	assert.NotEqual(t, status.PrimaryChecksum, status.SecondaryChecksum)
	assert.Zero(t, status.Difference)
}

func TestContentCheckDefaultAndOverride(t *testing.T) {
	p, s := newPair()
	p.Seed("t", replica.Row{"id": 1, "name": "b"})
	s.Seed("t", replica.Row{"id": 1, "name": "a"})

	v := NewVerifier(p, s, WithDefaultContentCheck(true, 0))
	ctx := context.Background()

	status, err := v.VerifySynchronization(ctx, "t")
	require.NoError(t, err)
	assert.False(t, status.Synchronized)

	status, err = v.VerifySynchronization(ctx, "t", WithoutContentCheck())
	require.NoError(t, err)
	assert.True(t, status.Synchronized)
}

func TestSampleLimitRestrictsChecksum(t *testing.T) {
	p, s := newPair()
	p.Seed("t", replica.Row{"id": 1, "name": "same"}, replica.Row{"id": 2, "name": "new"})
	s.Seed("t", replica.Row{"id": 1, "name": "same"}, replica.Row{"id": 2, "name": "old"})
	v := NewVerifier(p, s)
	ctx := context.Background()

	status, err := v.VerifySynchronization(ctx, "t", WithSampleLimit(1))
	require.NoError(t, err)
	assert.True(t, status.ContentChecked)
	assert.True(t, status.Synchronized, "drift past the sample is not seen")

	status, err = v.VerifySynchronization(ctx, "t", WithSampleLimit(2))
	require.NoError(t, err)
	assert.False(t, status.Synchronized)
}

func TestVerifyReportsProbeErrors(t *testing.T) {
	p, s := newPair()
	p.Seed("t", seedRows(3, "r")...)
	s.SetFailing(errors.New("relation does not exist"))

	status, err := NewVerifier(p, s).VerifySynchronization(context.Background(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncCheckFailed)
	assert.Equal(t, "t", status.Table)
	assert.Contains(t, status.Error, "relation does not exist")
	assert.False(t, status.Synchronized)
}

func TestVerifyRejectsBadTableName(t *testing.T) {
	p, s := newPair()
	_, err := NewVerifier(p, s).VerifySynchronization(context.Background(), "")
	assert.ErrorIs(t, err, ErrSyncCheckFailed)
	assert.Equal(t, 0, p.QueryCount())
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{int32(6), 6, true},
		{7, 7, true},
		{float64(8), 8, true},
		{"9", 9, true},
		{[]byte("10"), 10, true},
		{"x", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, err := toInt64(tt.in)
		if tt.ok {
			require.NoError(t, err, "%v", tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.Error(t, err, "%v", tt.in)
		}
	}
}
