package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/models"
)

func (s *Server) listTemplates(c *gin.Context) {
	tmpls, err := s.templates.ListTemplates(c.Request.Context(), accountID(c))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": tmpls})
}

func (s *Server) createTemplateVersion(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	var req models.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	version, err := s.templates.CreateVersion(c.Request.Context(), accountID(c), id, req)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}
