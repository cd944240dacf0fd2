package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/matching"
)

const imageField = "face_image"

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// readImage returns the uploaded face image. It writes the error response
// itself and reports false when the request cannot continue.
func readImage(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile(imageField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
			return nil, false
		}
		badRequest(c, fmt.Sprintf("Missing %s upload", imageField))
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "Unreadable upload")
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "Unreadable upload")
		return nil, false
	}

	contentType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !allowedImageTypes[contentType] {
		badRequest(c, "Invalid file type. Please upload a JPG or PNG image.")
		return nil, false
	}
	return data, true
}

// formUserID parses the first present form field among names.
func formUserID(c *gin.Context, names ...string) (int64, bool) {
	for _, name := range names {
		v := c.PostForm(name)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, name+" must be a positive integer")
			return 0, false
		}
		return id, true
	}
	badRequest(c, "Missing user_id")
	return 0, false
}

func (s *Server) registerFace(c *gin.Context) {
	data, ok := readImage(c)
	if !ok {
		return
	}
	id, ok := formUserID(c, "user_id")
	if !ok {
		return
	}

	e, err := s.services.Faces.Enroll(c.Request.Context(), id, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"identity_key": e.IdentityKey,
		"face_id":      e.FaceID,
	})
}

func (s *Server) recognize(c *gin.Context) {
	data, ok := readImage(c)
	if !ok {
		return
	}

	result, err := s.services.Faces.Recognize(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.matchBody(c, result))
}

// matchBody renders a recognition result. Identity fields are only present
// on a match.
func (s *Server) matchBody(c *gin.Context, result *matching.MatchResult) gin.H {
	body := gin.H{"matched": result.Matched}
	if result.Candidates > 0 {
		body["distance"] = result.Distance
	}
	if !result.Matched {
		return body
	}

	body["identity_key"] = result.IdentityKey
	if s.services.Directory != nil {
		name, err := s.services.Directory.DisplayName(c.Request.Context(), result.IdentityKey)
		if err != nil {
			logging.Component("server").WithField("identity", result.IdentityKey).
				WithError(err).Warn("Display name lookup failed")
		} else {
			body["display_name"] = name
		}
	}
	return body
}

func (s *Server) verify(c *gin.Context) {
	data, ok := readImage(c)
	if !ok {
		return
	}
	id, ok := formUserID(c, "user_id", "user_id_to_verify")
	if !ok {
		return
	}

	result, err := s.services.Faces.Verify(c.Request.Context(), id, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified": result.Verified,
		"distance": result.Distance,
	})
}

func (s *Server) deleteFace(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "user_id must be a positive integer")
		return
	}

	deleted, err := s.services.Faces.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"deleted": false, "error": "No face data enrolled for this user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
