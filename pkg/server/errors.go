package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/auth"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/matching"
)

var kindStatus = map[matching.ErrorKind]int{
	matching.KindInvalidImage:          http.StatusBadRequest,
	matching.KindNoFaceDetected:        http.StatusUnprocessableEntity,
	matching.KindMultipleFacesDetected: http.StatusUnprocessableEntity,
	matching.KindFaceAlreadyRegistered: http.StatusConflict,
	matching.KindIdentityNotEnrolled:   http.StatusNotFound,
	matching.KindStoreUnavailable:      http.StatusServiceUnavailable,
	matching.KindModelFailure:          http.StatusInternalServerError,
}

var sentinelStatus = []struct {
	err    error
	status int
}{
	{attendance.ErrAlreadyCheckedIn, http.StatusConflict},
	{attendance.ErrAlreadyCheckedOut, http.StatusConflict},
	{attendance.ErrNotCheckedIn, http.StatusBadRequest},
	{attendance.ErrInvalidFilter, http.StatusBadRequest},
	{auth.ErrPasswordMismatch, http.StatusBadRequest},
	{auth.ErrInvalidSignup, http.StatusBadRequest},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{database.ErrEmailTaken, http.StatusConflict},
	{database.ErrUserNotFound, http.StatusNotFound},
}

// errorStatus maps an error to its HTTP status and the message shown to
// clients. System faults get a generic message.
func errorStatus(err error) (int, string) {
	if kind := matching.KindOf(err); kind != "" {
		status := kindStatus[kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, kind.Message()
	}

	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "Request timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// respondError writes the error response and logs system faults.
func respondError(c *gin.Context, err error) {
	status, msg := errorStatus(err)

	body := gin.H{"error": msg}
	if kind := matching.KindOf(err); kind != "" {
		body["code"] = kind
	}

	if status >= http.StatusInternalServerError {
		logging.Component("server").WithFields(logging.Fields{
			"request_id": c.GetString(requestIDKey),
			"path":       c.Request.URL.Path,
		}).WithError(err).Error("Request failed")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
