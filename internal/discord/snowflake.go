package discord

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSnowflake converts a Discord snowflake string into an int64 id.
func parseSnowflake(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", raw, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid snowflake %q: must be positive", raw)
	}
	return id, nil
}

func formatSnowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseUserArg accepts a raw snowflake or a <@id> / <@!id> mention.
func parseUserArg(raw string) (int64, error) {
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<@"), ">")
	raw = strings.TrimPrefix(raw, "!")
	return parseSnowflake(raw)
}

// parseRoleSet converts a member's role id list, skipping malformed entries.
func parseRoleSet(raw []string) []int64 {
	if len(raw) == 0 {
		return nil
	}
	roles := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := parseSnowflake(r)
		if err != nil {
			continue
		}
		roles = append(roles, id)
	}
	return roles
}
