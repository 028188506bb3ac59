// Package api serves read-only HTTP introspection of a running flex
// computation.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/autoflex/internal/flex"
)

// Source supplies consistent snapshots of a manager, typically a
// transformer taking its lock between training steps.
type Source interface {
	Snapshot() flex.Snapshot
}

type Server struct {
	src     Source
	store   *SnapshotStore
	metrics http.Handler
	clock   func() time.Time
	started time.Time
}

// NewServer creates a server over src. store and metrics are optional.
func NewServer(src Source, store *SnapshotStore, metrics http.Handler) *Server {
	if store == nil {
		store = NewSnapshotStore(0)
	}
	s := &Server{
		src:     src,
		store:   store,
		metrics: metrics,
		clock:   time.Now,
	}
	s.started = s.clock()
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/flex/status", s.handleStatus)
	e.GET("/v1/flex/entries", s.handleListEntries)
	e.GET("/v1/flex/entries/:name", s.handleGetEntry)
	e.GET("/v1/flex/history", s.handleHistory)
	if s.metrics != nil {
		e.GET("/metrics", s.handleMetrics)
	}
}

func (s *Server) handleStatus(c *echo.Context) error {
	snap := s.src.Snapshot()
	kept, total := s.store.Len()
	resp := StatusResponse{
		Object:         "flex.status",
		Step:           snap.Step,
		FixedPoint:     snap.FixedPoint,
		Entries:        len(snap.Entries),
		SnapshotsKept:  kept,
		SnapshotsTotal: total,
		UptimeSeconds:  s.clock().Sub(s.started).Seconds(),
	}
	for i, e := range snap.Entries {
		if e.StepIndex == snap.Step && snap.Step > 0 {
			resp.UpdatedEntries++
		}
		resp.ClippedTotal += e.Clipped
		resp.OverflowsTotal += e.Overflows
		if i == 0 || e.Scale < resp.MinScale {
			resp.MinScale = e.Scale
		}
		if i == 0 || e.Scale > resp.MaxScale {
			resp.MaxScale = e.Scale
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListEntries(c *echo.Context) error {
	onlyClipped, err := parseBool("clipped", c.QueryParam("clipped"))
	if err != nil {
		return writeBadRequest(c, err)
	}
	snap := s.src.Snapshot()
	data := make([]flex.EntryState, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		if onlyClipped && e.Clipped == 0 {
			continue
		}
		data = append(data, e)
	}
	return c.JSON(http.StatusOK, EntryList{Object: "list", Step: snap.Step, Data: data})
}

func (s *Server) handleGetEntry(c *echo.Context) error {
	name := c.Param("name")
	e, ok := findEntry(s.src.Snapshot().Entries, name)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("entry %q not found", name))
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) handleHistory(c *echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return writeBadRequest(c, err)
	}
	snaps := s.store.Recent(limit)
	if name := c.QueryParam("entry"); name != "" {
		snaps = filterEntry(snaps, name)
	}
	return c.JSON(http.StatusOK, HistoryResponse{Object: "list", Data: snaps})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.ServeHTTP(c.Response(), c.Request())
	return nil
}
