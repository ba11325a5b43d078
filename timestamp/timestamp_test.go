package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFreezeTime(t *testing.T) {
	at := time.Date(2022, 3, 4, 10, 30, 0, 0, time.UTC)
	FreezeTimeAt(at)
	defer UnfreezeTime()

	require.Equal(t, at, Now())

	Advance(time.Hour)
	require.Equal(t, at.Add(time.Hour), Now())
	require.Equal(t, "2022-03-04T11:30:00.000000Z", Now().Format(Layout))
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2022, 3, 4, 23, 59, 59, 0, time.FixedZone("X", 2*3600))
	require.Equal(t, time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC), StartOfDay(in))
}
