// Package hatest provides a fake Home Assistant REST API for tests.
package hatest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/hass-mcp/pkg/device"
)

// Token is the access token the fake hub accepts.
const Token = "test-token"

// Request is a request received by the fake hub.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// Server is a fake hub backed by a device.MemoryHub.
type Server struct {
	*httptest.Server
	Hub *device.MemoryHub

	mu       sync.Mutex
	requests []Request
	status   int
	delay    time.Duration
	rawBody  string
}

// NewServer starts a fake hub seeded with states. Call Close when done.
func NewServer(states ...device.State) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{Hub: device.NewMemoryHub(states...)}

	r := gin.New()
	r.Use(gin.Recovery(), s.record, s.inject, s.auth)

	api := r.Group("/api")
	{
		api.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "API running."})
		})
		api.GET("/states", s.listStates)
		api.GET("/states/:entity_id", s.getState)
		api.POST("/services/:domain/:service", s.callService)
	}

	s.Server = httptest.NewServer(r)
	return s
}

// FailWith makes every request answer with status. Pass 0 to clear.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Delay holds every response for d before answering.
func (s *Server) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// RespondRaw answers every request with body and status 200.
func (s *Server) RespondRaw(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(c *gin.Context) {
	req := Request{
		Method:        c.Request.Method,
		Path:          c.Request.URL.EscapedPath(),
		Authorization: c.GetHeader("Authorization"),
	}
	if c.Request.Method == http.MethodPost {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err == nil {
			req.Body = body
			c.Set("body", body)
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	status, delay, raw := s.status, s.delay, s.rawBody
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"message": http.StatusText(status)})
		return
	}
	if raw != "" {
		c.Data(http.StatusOK, "application/json", []byte(raw))
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) auth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication"})
		return
	}
	c.Next()
}

func (s *Server) listStates(c *gin.Context) {
	states, err := s.Hub.ListStates(c.Request.Context())
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, states)
}

func (s *Server) getState(c *gin.Context) {
	state, err := s.Hub.GetState(c.Request.Context(), c.Param("entity_id"))
	if errors.Is(err, device.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Entity not found."})
		return
	}
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) callService(c *gin.Context) {
	body, _ := c.Get("body")
	data, _ := body.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	domain := c.Param("domain")
	if !strings.HasPrefix(stringOf(data["entity_id"]), domain+".") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "entity does not belong to domain"})
		return
	}

	changed, err := s.Hub.CallService(c.Request.Context(), domain, c.Param("service"), data)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, changed)
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
