package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/models"
)

func (s *Server) listSources(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	sources, err := s.sources.ListSources(c.Request.Context(), accountID(c), activeOnly)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (s *Server) createSource(c *gin.Context) {
	var req models.CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	source, err := s.sources.CreateSource(c.Request.Context(), accountID(c), req)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, source)
}
