package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/database"
)

const queryDateLayout = "2006-01-02"

func (s *Server) checkIn(c *gin.Context) {
	user := currentUser(c)
	rec, err := s.services.Attendance.CheckIn(c.Request.Context(), user.ID, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Check-in successful", "record": rec})
}

func (s *Server) checkOut(c *gin.Context) {
	user := currentUser(c)
	rec, err := s.services.Attendance.CheckOut(c.Request.Context(), user.ID, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Check-out successful", "record": rec})
}

// dateRange reads the optional start_date and end_date query parameters.
func dateRange(c *gin.Context) (from, to time.Time, ok bool) {
	parse := func(name string) (time.Time, bool) {
		v := c.Query(name)
		if v == "" {
			return time.Time{}, true
		}
		t, err := time.Parse(queryDateLayout, v)
		if err != nil {
			badRequest(c, name+" must be YYYY-MM-DD")
			return time.Time{}, false
		}
		return t, true
	}

	if from, ok = parse("start_date"); !ok {
		return
	}
	to, ok = parse("end_date")
	return
}

func (s *Server) history(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	recs, err := s.services.Attendance.History(c.Request.Context(), currentUser(c).ID, attendance.Filter{
		From:   from,
		To:     to,
		Status: database.AttendanceStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []database.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) workingHours(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	hours, err := s.services.Attendance.WorkingHours(c.Request.Context(), currentUser(c).ID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hours)
}

// faceScan identifies the person in front of a kiosk and toggles their
// attendance for today.
func (s *Server) faceScan(c *gin.Context) {
	data, ok := readImage(c)
	if !ok {
		return
	}

	result, err := s.services.Faces.Recognize(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	body := s.matchBody(c, result)
	if !result.Matched {
		c.JSON(http.StatusUnauthorized, body)
		return
	}

	scan, err := s.services.Attendance.Scan(c.Request.Context(), result.IdentityKey, s.now())
	if err != nil {
		respondError(c, err)
		return
	}
	body["action"] = scan.Action
	body["record"] = scan.Record
	c.JSON(http.StatusOK, body)
}
