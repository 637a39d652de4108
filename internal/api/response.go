package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PlateWatch/PlateWatch/internal/violation"
)

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// failDomain 把领域错误映射为HTTP响应：
// ValidationError -> 400（带校验消息），ErrNotFound -> 404，其余 -> 500。
func failDomain(c *gin.Context, err error, fallback string) {
	var ve *violation.ValidationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ve.Message)
	case errors.Is(err, violation.ErrNotFound):
		fail(c, http.StatusNotFound, "记录不存在")
	default:
		fail(c, http.StatusInternalServerError, fallback)
	}
}
