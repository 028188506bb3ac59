package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/autoflex/internal/flex"
)

func writeBadRequest(c *echo.Context, err error) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), paramOf(err), "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, queryError{param: "limit", want: "a non-negative integer", got: raw}
	}
	return n, nil
}

func parseBool(name, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError{param: name, want: "a boolean", got: raw}
	}
	return b, nil
}

// findEntry matches an entry by its full name or by the buffer name without
// the "a_" prefix.
func findEntry(entries []flex.EntryState, name string) (flex.EntryState, bool) {
	for _, e := range entries {
		if e.Name == name || strings.TrimPrefix(e.Name, "a_") == name {
			return e, true
		}
	}
	return flex.EntryState{}, false
}

func filterEntry(snaps []flex.Snapshot, name string) []flex.Snapshot {
	out := make([]flex.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		e, ok := findEntry(s.Entries, name)
		if !ok {
			continue
		}
		s.Entries = []flex.EntryState{e}
		out = append(out, s)
	}
	return out
}
