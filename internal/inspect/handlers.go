package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/rpc"
	"github.com/bhandras/devpanel/internal/store"
)

// InstanceSummary is one entry of GET /v1/instances.
type InstanceSummary struct {
	ID       string   `json:"id"`
	Version  string   `json:"version,omitempty"`
	Plugins  []string `json:"plugins"`
	Selected bool     `json:"selected"`
}

// SelectRequest is the body of the selection commands.
type SelectRequest struct {
	ID string `json:"id" binding:"required"`
}

// ViewResponse describes what the panel shows.
type ViewResponse struct {
	Selection store.Selection `json:"selection"`
	Rendered  string          `json:"rendered"`
	Flow      any             `json:"flow,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
}

// State handles GET /v1/state
func (s *Server) State(c *gin.Context) {
	c.JSON(http.StatusOK, s.panel.Store().Snapshot())
}

// Instances handles GET /v1/instances
func (s *Server) Instances(c *gin.Context) {
	snap := s.panel.Store().Snapshot()
	result := []InstanceSummary{}
	for _, id := range snap.Order {
		inst := snap.Instances[id]
		result = append(result, InstanceSummary{
			ID:       id,
			Version:  inst.Version,
			Plugins:  append([]string{}, inst.PluginOrder...),
			Selected: snap.Selection.InstanceID == id,
		})
	}
	c.JSON(http.StatusOK, gin.H{"instances": result})
}

// Plugins handles GET /v1/instances/:id/plugins
func (s *Server) Plugins(c *gin.Context) {
	id := c.Param("id")
	snap := s.panel.Store().Snapshot()
	if _, ok := snap.Instances[id]; !ok {
		c.JSON(http.StatusNotFound, wire.ErrorResponse{Error: "Instance not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugins": append([]string{}, snap.PluginIDs(id)...)})
}

// Selection handles GET /v1/selection
func (s *Server) Selection(c *gin.Context) {
	c.JSON(http.StatusOK, s.panel.Store().Selection())
}

// SelectInstance handles POST /v1/selection/instance
func (s *Server) SelectInstance(c *gin.Context) {
	s.selectCmd(c, s.panel.SelectInstance)
}

// SelectPlugin handles POST /v1/selection/plugin
func (s *Server) SelectPlugin(c *gin.Context) {
	s.selectCmd(c, s.panel.SelectPlugin)
}

func (s *Server) selectCmd(c *gin.Context, fn func(context.Context, string) error) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: "Invalid request"})
		return
	}
	if err := fn(c.Request.Context(), req.ID); err != nil {
		commandFailed(c, err)
		return
	}
	// Unknown ids leave the selection untouched; the caller sees the result.
	c.JSON(http.StatusOK, s.panel.Store().Selection())
}

// View handles GET /v1/view
func (s *Server) View(c *gin.Context) {
	resp := ViewResponse{Selection: s.panel.Store().Selection()}
	if r := s.panel.Rendered(); r != nil {
		resp.Rendered = r.ID()
	}
	if f, data, ok := s.panel.Store().Current(); ok {
		if f != nil {
			resp.Flow = f
		}
		resp.Data = data
	}
	c.JSON(http.StatusOK, resp)
}

// Logs handles GET /v1/logs
func (s *Server) Logs(c *gin.Context) {
	logs := s.panel.Store().Logs()
	if logs == nil {
		logs = []store.LogEntry{}
	}
	if player := c.Query("player"); player != "" {
		filtered := []store.LogEntry{}
		for _, e := range logs {
			if e.PlayerID == player {
				filtered = append(filtered, e)
			}
		}
		logs = filtered
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ClearLogs handles DELETE /v1/logs
func (s *Server) ClearLogs(c *gin.Context) {
	if err := s.panel.Store().ClearLogs(c.Request.Context()); err != nil {
		commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Reset handles POST /v1/reset
func (s *Server) Reset(c *gin.Context) {
	if err := s.panel.Store().Reset(c.Request.Context()); err != nil {
		commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Kinds handles GET /v1/kinds
func (s *Server) Kinds(c *gin.Context) {
	type kindInfo struct {
		Kind     wire.Kind `json:"kind"`
		Required []string  `json:"required"`
	}
	result := make([]kindInfo, 0, len(wire.Kinds))
	for _, k := range wire.Kinds {
		result = append(result, kindInfo{Kind: k, Required: append([]string{}, rpc.RequiredParams(k)...)})
	}
	c.JSON(http.StatusOK, gin.H{"kinds": result})
}

// Call handles POST /v1/rpc/:kind
//
// The body, if any, is sent as the request params. The response carries the
// runtime's result verbatim.
func (s *Server) Call(c *gin.Context) {
	kind := wire.Kind(c.Param("kind"))

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: "Failed to read body"})
		return
	}
	var params any
	if len(body) > 0 {
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: "Body must be JSON"})
			return
		}
		params = json.RawMessage(body)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.callTimeout)
	defer cancel()

	result, err := s.panel.RPC().Call(ctx, kind, params)
	if err != nil {
		c.JSON(callStatus(err), wire.ErrorResponse{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", result)
}

func callStatus(err error) int {
	var validation *rpc.ValidationError
	var remote *rpc.RemoteError
	switch {
	case errors.Is(err, rpc.ErrUnknownKind):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rpc.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func commandFailed(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, actor.ErrStopped) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, wire.ErrorResponse{Error: err.Error()})
}
