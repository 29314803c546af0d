package domain

import (
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogErrorCapsAtFifty(t *testing.T) {
	t.Parallel()

	var f FeedSource
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxErrorLogEntries+7; i++ {
		f.LogError(start.Add(time.Duration(i)*time.Minute), fmt.Sprintf("error %d", i))
	}
	require.Len(t, f.ErrorLog, MaxErrorLogEntries)
	assert.Equal(t, "error 7", f.ErrorLog[0].Message)
	assert.Equal(t, fmt.Sprintf("error %d", MaxErrorLogEntries+6), f.ErrorLog[MaxErrorLogEntries-1].Message)
}

func TestDailyRollover(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	last := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC) // 23:30 in Berlin
	f := FeedSource{MaxPostsPerDay: 3, PostsToday: 3, LastPublished: &last}
	assert.True(t, f.QuotaReached())

	sameDayBerlin := time.Date(2024, 3, 10, 22, 50, 0, 0, time.UTC)
	assert.False(t, f.DayRolledOver(sameDayBerlin, berlin))

	nextDayBerlin := time.Date(2024, 3, 10, 23, 5, 0, 0, time.UTC)
	assert.True(t, f.DayRolledOver(nextDayBerlin, berlin))
	assert.False(t, f.DayRolledOver(nextDayBerlin, time.UTC))

	assert.True(t, f.ResetDailyIfRolledOver(nextDayBerlin, berlin))
	assert.Zero(t, f.PostsToday)
	assert.False(t, f.QuotaReached())
	assert.False(t, f.ResetDailyIfRolledOver(nextDayBerlin, berlin))
}

func TestRecordPublish(t *testing.T) {
	t.Parallel()

	var f FeedSource
	at := time.Now()
	f.RecordPublish(at)
	f.RecordPublish(at)
	assert.Equal(t, 2, f.PostsToday)
	assert.Equal(t, 2, f.TotalPosts)
	require.NotNil(t, f.LastPublished)
	assert.True(t, f.LastPublished.Equal(at))

	unlimited := FeedSource{PostsToday: 100}
	assert.False(t, unlimited.QuotaReached())
}

func TestNeverPublishedFeedCountsAsRolledOver(t *testing.T) {
	t.Parallel()

	f := FeedSource{}
	assert.True(t, f.DayRolledOver(time.Now(), nil))
}
