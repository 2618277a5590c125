package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/services"
)

// mapServiceError writes the HTTP response for a service-layer error.
// Unexpected errors are logged with detail but answered with a generic body.
func (s *Server) mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, services.ErrJobNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not in a cancellable state"})
	case errors.Is(err, services.ErrJobNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not in a retryable state"})
	case errors.Is(err, services.ErrRetryExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": "job has no retries left"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "illegal status transition"})
	case errors.Is(err, services.ErrAlreadyGenerated):
		c.JSON(http.StatusConflict, gin.H{"error": "article already has an active generated article"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "resource already exists"})
	default:
		s.logger.Error("unexpected service error",
			"path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
