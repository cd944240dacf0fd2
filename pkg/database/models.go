package database

import (
	"encoding/json"
	"time"
)

// Role is a user's access level.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleHRManager  Role = "hr_manager"
	RoleEmployee   Role = "employee"
)

// AttendanceStatus classifies an attendance record.
type AttendanceStatus string

const (
	StatusOnTime AttendanceStatus = "on_time"
	StatusLate   AttendanceStatus = "late"
	StatusAbsent AttendanceStatus = "absent"
)

// Valid reports whether s is a known status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusOnTime, StatusLate, StatusAbsent:
		return true
	}
	return false
}

type Department struct {
	ID   int64  `gorm:"primaryKey;column:department_id" json:"department_id"`
	Name string `gorm:"column:department_name;size:100;not null" json:"department_name"`
}

func (Department) TableName() string {
	return "departments"
}

type User struct {
	ID           int64     `gorm:"primaryKey;column:user_id" json:"user_id"`
	FullName     string    `gorm:"size:100;not null" json:"full_name"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         Role      `gorm:"type:enum('super_admin','hr_manager','employee');default:employee" json:"role"`
	DepartmentID *int64    `gorm:"index" json:"department_id,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// FaceEmbedding is the stored descriptor of one identity. The unique index on
// user_id serialises concurrent enrollments of the same identity.
type FaceEmbedding struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	UserID         int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	FaceID         string          `gorm:"size:36;uniqueIndex;not null" json:"face_id"`
	Encoding       json.RawMessage `gorm:"type:json;not null" json:"-"`
	ReferenceImage string          `gorm:"size:255" json:"reference_image"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (FaceEmbedding) TableName() string {
	return "face_embeddings"
}

// AttendanceRecord is one user's attendance for one calendar day.
type AttendanceRecord struct {
	ID           int64            `gorm:"primaryKey;column:record_id" json:"record_id"`
	UserID       int64            `gorm:"uniqueIndex:idx_attendance_user_date;not null" json:"user_id"`
	RecordDate   time.Time        `gorm:"type:date;uniqueIndex:idx_attendance_user_date;not null" json:"record_date"`
	CheckInTime  *time.Time       `json:"check_in_time"`
	CheckOutTime *time.Time       `json:"check_out_time"`
	Status       AttendanceStatus `gorm:"type:enum('on_time','late','absent')" json:"status"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

// AllModels lists every table managed by Migrate.
func AllModels() []interface{} {
	return []interface{}{
		&Department{},
		&User{},
		&FaceEmbedding{},
		&AttendanceRecord{},
	}
}
