// internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
	"github.com/SyedDaiam9101/rmbg-service/internal/imgcodec"
	"github.com/SyedDaiam9101/rmbg-service/internal/middleware"
	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// httpStatus maps pipeline and decode errors to HTTP status codes
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, colors.ErrInvalidColor), errors.Is(err, imgcodec.ErrDecode):
		return http.StatusBadRequest
	}

	switch segmentation.KindOf(err) {
	case segmentation.KindInvalidColor:
		return http.StatusBadRequest
	case segmentation.KindModelLoad:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// detail is the client-facing message for err
func detail(err error) string {
	switch httpStatus(err) {
	case http.StatusBadRequest:
		if errors.Is(err, colors.ErrInvalidColor) {
			return "invalid background color format"
		}
		return "uploaded file is not a valid image"
	case http.StatusServiceUnavailable:
		return "segmentation model is not loaded"
	default:
		return "error processing image: " + err.Error()
	}
}

func abortWithDetail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Detail:    msg,
		RequestID: middleware.GetRequestID(c.Request.Context()),
	})
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	abortWithDetail(c, httpStatus(err), detail(err))
}
