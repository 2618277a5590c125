package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/models"
)

func (s *Server) listGenerated(c *gin.Context) {
	status := models.GeneratedStatus(c.Query("status"))
	limit := intQuery(c, "limit", 50)

	articles, err := s.generated.ListGenerated(c.Request.Context(), accountID(c), status, limit)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generated": articles})
}

func (s *Server) approveGenerated(c *gin.Context) {
	s.transitionGenerated(c, models.GeneratedStatusApproved)
}

func (s *Server) publishGenerated(c *gin.Context) {
	s.transitionGenerated(c, models.GeneratedStatusPublished)
}

func (s *Server) transitionGenerated(c *gin.Context, next models.GeneratedStatus) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return
	}

	article, err := s.generated.TransitionStatus(c.Request.Context(), accountID(c), id, next)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}
