package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// SubmissionLog is the audit row written for every submit attempt.
type SubmissionLog struct {
	BaseModel
	FormID     string `json:"form_id" gorm:"size:100;not null;index"`
	SessionID  string `json:"session_id" gorm:"size:36;not null;index"`
	Outcome    string `json:"outcome" gorm:"size:20;not null;index;type:enum('success','invalid','conflict','rejected','transport')"`
	Message    string `json:"message" gorm:"type:text"`
	ServerID   string `json:"server_id" gorm:"size:100"`
	Error      string `json:"error,omitempty" gorm:"type:text"`
	Payload    JSON   `json:"payload" gorm:"type:json"`
	DurationMS int64  `json:"duration_ms"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`
}

// ExportArchive tracks registration exports uploaded to S3
type ExportArchive struct {
	BaseModel
	FileName    string `json:"file_name" gorm:"size:255;not null"`
	S3Key       string `json:"s3_key" gorm:"size:500;not null"`
	RecordCount int    `json:"record_count" gorm:"not null"`
	FileSize    int64  `json:"file_size" gorm:"not null"`
	RequestedBy string `json:"requested_by" gorm:"size:100"`
	Status      string `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error       string `json:"error" gorm:"type:text"`
}

// RemoteID holds an identifier assigned by the backend API, which may be
// sent as a JSON number or string.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RemoteID(n.String())
	return nil
}

// RegistrationRecord is a student registration as returned by the backend.
type RegistrationRecord struct {
	ID                   RemoteID   `json:"id"`
	FullName             string     `json:"fullName"`
	MobileNumber         string     `json:"mobileNumber"`
	EmailAddress         string     `json:"emailAddress"`
	CollegeName          string     `json:"collegeName"`
	CurrentCourseAndYear string     `json:"currentCourseAndYear"`
	CityTown             string     `json:"cityTown"`
	PreferredCourse      string     `json:"preferredCourse,omitempty"`
	HearAboutExam        string     `json:"hearAboutExam"`
	ReferralCode         string     `json:"referralCode,omitempty"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
}

type ReferralCode struct {
	ID         RemoteID   `json:"id"`
	Code       string     `json:"code"`
	OwnerName  string     `json:"ownerName"`
	UsageCount int        `json:"usageCount"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// ReferralValidation is the backend answer for a single referral code.
type ReferralValidation struct {
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
	OwnerName string `json:"ownerName,omitempty"`
}

type RegistrationStatistics struct {
	TotalRegistrations            int64 `json:"totalRegistrations"`
	RegistrationsWithReferralCode int64 `json:"registrationsWithReferralCode"`
}

// FormCount is one row of the per-form submission summary.
type FormCount struct {
	FormID  string `json:"form_id"`
	Outcome string `json:"outcome"`
	Total   int64  `json:"total"`
}
