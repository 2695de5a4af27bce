package rest

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SuccessResponse is the uniform success envelope every handler
// responds with.
type SuccessResponse struct {
	Data interface{} `json:"data"`
	Meta *MetaInfo   `json:"meta,omitempty"`
}

// MetaInfo carries pagination metadata for list endpoints.
type MetaInfo struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Data: data})
}

func respondList(c *gin.Context, status int, data interface{}, total, limit, offset int) {
	c.JSON(status, SuccessResponse{Data: data, Meta: &MetaInfo{Total: total, Limit: limit, Offset: offset}})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, NewAPIError("ERROR", message, status))
}

func respondAPIError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}

// bindJSON decodes the request body into obj, responding with
// ErrInvalidJSON and returning false on failure.
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondAPIError(c, ErrInvalidJSON)
		return false
	}
	return true
}

// paramUUID parses a path parameter as a uuid.UUID, responding with
// ErrInvalidID and returning false on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return uuid.UUID{}, false
	}
	return id, true
}

func getQueryInt(c *gin.Context, name string, defaultValue int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getRequestID(c *gin.Context) string {
	v, ok := c.Get(ContextKeyRequestID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
