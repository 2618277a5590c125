package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/models"
)

func (s *Server) listArticles(c *gin.Context) {
	status := models.ArticleStatus(c.Query("status"))
	limit := intQuery(c, "limit", 50)

	articles, err := s.articles.ListArticles(c.Request.Context(), accountID(c), status, limit)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}
