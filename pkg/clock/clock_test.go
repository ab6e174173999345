package clock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinutes(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"07:30": 450,
		"8:05":  485,
		"14:30": 870,
		"23:59": 1439,
	}
	for input, want := range cases {
		got, err := ToMinutes(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestToMinutesRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "0800", "ab:cd", "08:5", "24:00", "12:60", "-1:00", "08:00:00", "08:+5", "+8:00", "-0:00", " 08:00", "08:00 ", "0x:10"} {
		_, err := ToMinutes(input)
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, ErrParse), input)
		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr), input)
	}
}

func TestFromMinutesRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		got, err := ToMinutes(FromMinutes(m))
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestFromMinutesPanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { FromMinutes(-1) })
	assert.Panics(t, func() { FromMinutes(MinutesPerDay) })
}

func TestOverlapsHalfOpen(t *testing.T) {
	assert.True(t, Overlaps(480, 540, 500, 520))
	assert.True(t, Overlaps(480, 540, 530, 600))
	assert.False(t, Overlaps(480, 540, 540, 600), "touching intervals do not overlap")
	assert.False(t, Overlaps(540, 600, 480, 540))
	assert.False(t, Overlaps(480, 480, 470, 490), "zero length never overlaps")
}

func TestOverlapsMatchesDefinition(t *testing.T) {
	for ps := 0; ps < 12; ps++ {
		for pe := ps + 1; pe <= 12; pe++ {
			for es := 0; es < 12; es++ {
				for ee := es + 1; ee <= 12; ee++ {
					want := max(ps, es) < min(pe, ee)
					require.Equal(t, want, Overlaps(ps, pe, es, ee))
					require.Equal(t, want, Overlaps(es, ee, ps, pe), "symmetric")
				}
			}
		}
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("08:00", "09:00")
	require.NoError(t, err)
	assert.Equal(t, Interval{Start: 480, End: 540}, iv)
	assert.Equal(t, 60, iv.Len())
	assert.Equal(t, "08:00-09:00", iv.String())
	assert.True(t, iv.Contains(Interval{Start: 500, End: 520}))
	assert.False(t, iv.Contains(Interval{Start: 470, End: 520}))

	_, err = ParseInterval("09:00", "09:00")
	assert.ErrorIs(t, err, ErrParse)
	_, err = ParseInterval("9", "10:00")
	assert.ErrorIs(t, err, ErrParse)
}
