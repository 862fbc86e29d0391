package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntityType tags master records across the matching, issue and audit logs.
type EntityType string

const (
	EntitySchool  EntityType = "School"
	EntityStudent EntityType = "Student"
	EntityParent  EntityType = "Parent"
)

// School is a mutable master record converged from the Madaris directory and
// the Tarkhees licensing extract. At most one row should survive per natural
// key (CR number or ministry school id) after injection.
type School struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	MasterSchoolID   string       `gorm:"index" json:"master_school_id,omitempty"`
	MadarisSchoolID  string       `json:"madaris_school_id,omitempty"`
	MinistrySchoolID string       `gorm:"index" json:"ministry_school_id,omitempty"`
	CRNumber         string       `gorm:"column:cr_number;index" json:"cr_number,omitempty"`
	LicenseNumber    string       `json:"license_number,omitempty"`
	NameAr           string       `json:"name_ar,omitempty"`
	NameEn           string       `json:"name_en,omitempty"`
	Region           string       `json:"region,omitempty"`
	City             string       `json:"city,omitempty"`
	District         string       `json:"district,omitempty"`
	StagesCsv        string       `json:"stages_csv,omitempty"`
	Status           string       `json:"status,omitempty"`
	BatchID          snowflake.ID `gorm:"index" json:"batch_id"`
	LastUpdated      time.Time    `gorm:"not null" json:"last_updated"`
}

// Student is a mutable master record sourced from the Noor roster.
type Student struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	MasterStudentID   string        `gorm:"index" json:"master_student_id,omitempty"`
	MinistryStudentID string        `gorm:"index" json:"ministry_student_id,omitempty"`
	NationalID        string        `gorm:"index" json:"national_id,omitempty"`
	FullNameAr        string        `json:"full_name_ar,omitempty"`
	FullNameEn        string        `json:"full_name_en,omitempty"`
	DOB               *time.Time    `json:"dob,omitempty"`
	Gender            string        `json:"gender,omitempty"`
	Nationality       string        `json:"nationality,omitempty"`
	Grade             string        `json:"grade,omitempty"`
	PhonesCsv         string        `json:"phones_csv,omitempty"`
	EmailsCsv         string        `json:"emails_csv,omitempty"`
	Address           string        `json:"address,omitempty"`
	CRNumber          string        `gorm:"column:cr_number" json:"cr_number,omitempty"`
	MinistrySchoolID  string        `json:"ministry_school_id,omitempty"`
	CurrentSchoolID   *snowflake.ID `json:"current_school_id,omitempty"`
	BatchID           snowflake.ID  `gorm:"index" json:"batch_id"`
	LastUpdated       time.Time     `gorm:"not null" json:"last_updated"`
}

// Parent is a mutable master record sourced from the Noor roster.
type Parent struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	MasterParentID   string       `gorm:"index" json:"master_parent_id,omitempty"`
	MinistryParentID string       `gorm:"index" json:"ministry_parent_id,omitempty"`
	NationalID       string       `gorm:"index" json:"national_id,omitempty"`
	FullNameAr       string       `json:"full_name_ar,omitempty"`
	FullNameEn       string       `json:"full_name_en,omitempty"`
	PhonesCsv        string       `json:"phones_csv,omitempty"`
	EmailsCsv        string       `json:"emails_csv,omitempty"`
	Address          string       `json:"address,omitempty"`
	BatchID          snowflake.ID `gorm:"index" json:"batch_id"`
	LastUpdated      time.Time    `gorm:"not null" json:"last_updated"`
}

// License is read-only reference data from the Tarkhees licensing source.
type License struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	MinistrySchoolID string       `gorm:"index" json:"ministry_school_id,omitempty"`
	CRNumber         string       `gorm:"column:cr_number;index" json:"cr_number,omitempty"`
	LicenseNumber    string       `json:"license_number,omitempty"`
	InstitutionName  string       `json:"institution_name,omitempty"`
	LicenseStatus    string       `json:"license_status,omitempty"`
	LicenseType      string       `json:"license_type,omitempty"`
	IssueDate        *time.Time   `json:"issue_date,omitempty"`
	ExpiryDate       *time.Time   `json:"expiry_date,omitempty"`
	BatchID          snowflake.ID `gorm:"index" json:"batch_id"`
}

// Enrollment links a student to a school for one academic year.
type Enrollment struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	StudentID    snowflake.ID `gorm:"index" json:"student_id"`
	SchoolID     snowflake.ID `gorm:"index" json:"school_id"`
	AcademicYear string       `json:"academic_year,omitempty"`
	Grade        string       `json:"grade,omitempty"`
	Class        string       `json:"class,omitempty"`
	Status       string       `json:"status,omitempty"`
	BatchID      snowflake.ID `gorm:"index" json:"batch_id"`
}
