package discord

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSnowflake(t *testing.T) {
	id, err := parseSnowflake("1470909799502712935")
	require.NoError(t, err)
	require.Equal(t, int64(1470909799502712935), id)

	_, err = parseSnowflake("not-a-number")
	require.Error(t, err)

	_, err = parseSnowflake("")
	require.Error(t, err)

	_, err = parseSnowflake("-5")
	require.Error(t, err)

	_, err = parseSnowflake("0")
	require.Error(t, err)
}

func TestFormatSnowflakeRoundTrip(t *testing.T) {
	id, err := parseSnowflake(formatSnowflake(42))
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestParseUserArg(t *testing.T) {
	for _, raw := range []string{"1001", "<@1001>", "<@!1001>"} {
		id, err := parseUserArg(raw)
		require.NoError(t, err, raw)
		require.Equal(t, int64(1001), id, raw)
	}

	_, err := parseUserArg("25h")
	require.Error(t, err)
}

func TestParseRoleSetSkipsMalformedEntries(t *testing.T) {
	roles := parseRoleSet([]string{"100", "garbage", "200"})
	require.Equal(t, []int64{100, 200}, roles)

	require.Nil(t, parseRoleSet(nil))
}
