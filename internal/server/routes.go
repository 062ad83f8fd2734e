package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"task-agent/internal/sandbox"
	"task-agent/internal/tools"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

type runRequest struct {
	Task string `json:"task"`
}

type runResponse struct {
	Status    tools.Status `json:"status"`
	Message   string       `json:"message"`
	Operation string       `json:"operation"`
	Data      any          `json:"data,omitempty"`
}

type errorResponse struct {
	Detail    string     `json:"detail"`
	Kind      tools.Kind `json:"kind,omitempty"`
	Operation string     `json:"operation,omitempty"`
}

type operationInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// handleRun 接受 ?task= 或 JSON body；分发失败统一返回 400。
func (s *Server) handleRun(c *gin.Context) {
	task := strings.TrimSpace(c.Query("task"))
	if task == "" && c.Request.ContentLength != 0 {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Detail: "invalid request body: " + err.Error(), Kind: tools.KindArgumentValidation})
			return
		}
		task = strings.TrimSpace(req.Task)
	}
	if task == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "task is required", Kind: tools.KindArgumentValidation})
		return
	}

	res := s.dispatcher.Run(c.Request.Context(), task)
	if !res.OK() {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: res.Message, Kind: res.Kind, Operation: res.Operation})
		return
	}
	c.JSON(http.StatusOK, runResponse{
		Status:    res.Status,
		Message:   res.Message,
		Operation: res.Operation,
		Data:      res.Data,
	})
}

func (s *Server) handleRead(c *gin.Context) {
	raw := c.Query("path")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "path is required"})
		return
	}
	path, err := s.root.Resolve(raw)
	if err != nil {
		status := http.StatusInternalServerError
		if sandbox.IsViolation(err) {
			status = http.StatusForbidden
		}
		c.JSON(status, errorResponse{Detail: err.Error(), Kind: tools.KindSandboxViolation})
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, errorResponse{Detail: "file not found: " + s.root.Rel(path)})
			return
		}
		s.log.WithError(err).Warnf("read %s", s.root.Rel(path))
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "cannot read " + s.root.Rel(path)})
		return
	}
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}

func (s *Server) handleAsk(c *gin.Context) {
	prompt := strings.TrimSpace(c.Query("prompt"))
	if prompt == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "prompt is required"})
		return
	}
	call, err := s.asker.Select(c.Request.Context(), prompt)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Detail: err.Error()})
		return
	}
	args := json.RawMessage(call.Arguments)
	if !json.Valid(args) {
		args = json.RawMessage(`{}`)
	}
	c.JSON(http.StatusOK, gin.H{"name": call.Name, "arguments": args})
}

func (s *Server) handleOperations(c *gin.Context) {
	specs := s.registry.Describe()
	out := make([]operationInfo, 0, len(specs))
	for _, spec := range specs {
		out = append(out, operationInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Schema.JSONSchema(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"operations": out})
}
