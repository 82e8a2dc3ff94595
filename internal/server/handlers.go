package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/pipeline"
	"github.com/spigell/screener/internal/threads"
)

type messageBody struct {
	Message string `json:"message"`
}

type errorBody struct {
	Error    string `json:"error"`
	Language string `json:"language,omitempty"`
}

type replyBody struct {
	ThreadID    string `json:"threadId"`
	Reply       string `json:"reply"`
	Stage       string `json:"stage"`
	Language    string `json:"language"`
	Session     int    `json:"session"`
	Continuity  string `json:"continuity"`
	ArtifactRef string `json:"artifactRef,omitempty"`
}

type turnBody struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Session   int       `json:"session"`
	CreatedAt time.Time `json:"createdAt"`
}

type threadBody struct {
	ID           string     `json:"id"`
	Stage        string     `json:"stage"`
	Language     string     `json:"language"`
	Session      int        `json:"session"`
	LastActivity time.Time  `json:"lastActivity"`
	Turns        []turnBody `json:"turns"`
}

type healthBody struct {
	Status string            `json:"status"`
	Stats  pipeline.Snapshot `json:"stats"`
	Steps  []pipeline.Status `json:"steps"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthBody{
		Status: "ok",
		Stats:  s.screener.Stats(),
		Steps:  s.screener.Describe(),
	})
}

func (s *Server) screen(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	result, err := s.screener.Screen(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) message(c *gin.Context) {
	var body messageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	reply, err := s.screener.Converse(c.Request.Context(), pipeline.Message{
		ThreadID: c.Param("id"),
		Message:  body.Message,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, replyBody{
		ThreadID:    reply.ThreadID,
		Reply:       reply.Text,
		Stage:       string(reply.Stage),
		Language:    reply.Language,
		Session:     reply.Session,
		Continuity:  reply.Continuity.String(),
		ArtifactRef: reply.ArtifactRef,
	})
}

func (s *Server) thread(c *gin.Context) {
	if s.threads == nil {
		c.JSON(http.StatusNotFound, errorBody{Error: threads.ErrNotFound.Error()})
		return
	}

	thread, turns, err := s.threads.Load(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, threads.ErrNotFound), errors.Is(err, threads.ErrInvalidID):
		c.JSON(http.StatusNotFound, errorBody{Error: threads.ErrNotFound.Error()})
		return
	case err != nil:
		s.fail(c, err)
		return
	}

	body := threadBody{
		ID:           thread.ID,
		Stage:        thread.Stage,
		Language:     thread.Language,
		Session:      thread.Session,
		LastActivity: thread.LastActivity,
		Turns:        make([]turnBody, 0, len(turns)),
	}
	for _, t := range turns {
		body.Turns = append(body.Turns, turnBody{Role: string(t.Role), Text: t.Text, Session: t.Session, CreatedAt: t.CreatedAt})
	}
	c.JSON(http.StatusOK, body)
}

// fail maps pipeline errors to responses. Internal details never leave the server.
func (s *Server) fail(c *gin.Context, err error) {
	var rejection *pipeline.RejectionError
	switch {
	case errors.As(err, &rejection):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: rejection.Reason, Language: rejection.Language})
	case errors.Is(err, pipeline.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: genericFailure})
	}
}
