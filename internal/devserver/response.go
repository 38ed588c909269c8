package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应结构，与客户端 Envelope 对应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data, Message: message})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Error: msg})
}

func failDetail(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{Success: false, Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}
