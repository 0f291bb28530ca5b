package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrgAccount 表示注册的机构账号，以 (email, organization) 作为业务身份。
type OrgAccount struct {
	gorm.Model
	Email              string     `gorm:"size:255;not null;uniqueIndex:idx_org_accounts_identity"`
	Organization       string     `gorm:"size:255;not null"`
	OrganizationKey    string     `gorm:"size:255;not null;uniqueIndex:idx_org_accounts_identity"`
	PasswordHash       string     `gorm:"size:255;not null"`
	EmailVerified      bool       `gorm:"default:false"`
	MustChangePassword bool       `gorm:"default:false"`
	OTPHash            *string    `gorm:"column:otp_hash;size:255"`
	OTPPurpose         string     `gorm:"column:otp_purpose;size:16"`
	OTPExpiresAt       *time.Time `gorm:"column:otp_expires_at"`
}

// OTP purposes.
const (
	OTPPurposeSignup = "signup"
	OTPPurposeReset  = "reset"
)

// ImportedRecord is one row accepted by the CSV import.
type ImportedRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FullName  string    `gorm:"size:255;not null" json:"full_name"`
	Email     string    `gorm:"size:255;not null;index" json:"email"`
	PhoneNo   string    `gorm:"size:64;not null" json:"phone_no"`
	TokenURL  string    `gorm:"size:512" json:"token_url"`
	EmailSent *int      `gorm:"default:0" json:"email_sent"`
	CreatedAt time.Time `json:"created_at"`
}

// CandidateDetail 对应候选人填写的完整信息表单。
type CandidateDetail struct {
	ID                       uint           `gorm:"primaryKey" json:"id"`
	FirstName                string         `gorm:"size:128" json:"first_name"`
	MiddleName               string         `gorm:"size:128" json:"middle_name"`
	LastName                 string         `gorm:"size:128" json:"last_name"`
	Email                    string         `gorm:"size:255;not null;index" json:"email"`
	ContactNumber            string         `gorm:"size:64" json:"contact_number"`
	Domain                   string         `gorm:"size:128" json:"domain"`
	SubDomain                string         `gorm:"size:128" json:"subdomain"`
	Marks                    string         `gorm:"size:32" json:"marks"`
	DateOfBirth              string         `gorm:"size:32" json:"date_of_birth"`
	Gender                   string         `gorm:"size:32" json:"gender"`
	CurrentLocation          string         `gorm:"size:255" json:"current_location"`
	Pincode                  string         `gorm:"size:16" json:"pincode"`
	State                    string         `gorm:"size:128" json:"state"`
	City                     string         `gorm:"size:128" json:"city"`
	Country                  string         `gorm:"size:128" json:"country"`
	EmergencyContactNumber   string         `gorm:"size:64" json:"emergency_contact_number"`
	EmergencyContactName     string         `gorm:"size:255" json:"emergency_contact_name"`
	EmergencyContactRelation string         `gorm:"size:64" json:"emergency_contact_relation"`
	HighestQualification     string         `gorm:"size:128" json:"highest_qualification"`
	Degree                   string         `gorm:"size:128" json:"degree"`
	CourseName               string         `gorm:"size:255" json:"course_name"`
	College                  string         `gorm:"size:255" json:"college"`
	University               string         `gorm:"size:255" json:"university"`
	YearOfPassing            string         `gorm:"size:8" json:"year_of_passing"`
	InternshipExperience     string         `gorm:"type:text" json:"internship_experience"`
	Skills                   datatypes.JSON `json:"skills"`
	ResumeURL                string         `gorm:"size:512" json:"resume_url"`
	TokenURL                 string         `gorm:"size:512" json:"token_url"`
	EmailSent                *int           `gorm:"default:0" json:"email_sent"`
	CreatedAt                time.Time      `json:"created_at"`
}

// FullName joins the non-empty name parts.
func (c CandidateDetail) FullName() string {
	name := c.FirstName
	for _, part := range []string{c.MiddleName, c.LastName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// CandidateRanking 表示一次领域测评提交及其在 (domain, sub_domain) 分区内的名次。
type CandidateRanking struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Rank              *int      `gorm:"column:candidate_rank" json:"rank"`
	SubmittedAt       time.Time `json:"submitted_at"`
	FirstName         string    `gorm:"size:128" json:"first_name"`
	MiddleName        string    `gorm:"size:128" json:"middle_name"`
	LastName          string    `gorm:"size:128" json:"last_name"`
	Email             string    `gorm:"size:255;not null" json:"email"`
	PhoneNo           string    `gorm:"size:64" json:"phone_no"`
	College           string    `gorm:"size:255" json:"college"`
	University        string    `gorm:"size:255" json:"university"`
	Degree            string    `gorm:"size:128" json:"degree"`
	Domain            string    `gorm:"size:128;not null" json:"domain"`
	SubDomain         string    `gorm:"size:128;not null" json:"sub_domain"`
	Marks             int       `gorm:"not null;default:0" json:"marks"`
	CompletionSeconds int       `gorm:"not null;default:0" json:"completion_seconds"`
	Day               int       `json:"day"`
	Month             string    `gorm:"size:16" json:"month"`
	Year              int       `gorm:"index" json:"year"`
	EmailStatus       int       `gorm:"not null;default:0" json:"email_status"`
}

// FullName joins the non-empty name parts.
func (c CandidateRanking) FullName() string {
	return CandidateDetail{FirstName: c.FirstName, MiddleName: c.MiddleName, LastName: c.LastName}.FullName()
}

// CandidateEmailStatus 记录某机构是否已经联系过某候选人。
type CandidateEmailStatus struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CandidateEmail string    `gorm:"size:255;not null;uniqueIndex:idx_candidate_email_org" json:"candidate_email"`
	OrgName        string    `gorm:"size:255;not null;uniqueIndex:idx_candidate_email_org" json:"org_name"`
	EmailStatus    int       `gorm:"not null;default:0" json:"email_status"`
	CandidateName  string    `gorm:"size:255" json:"candidate_name"`
	SubDomain      string    `gorm:"size:128" json:"sub_domain"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrgEmailCount counts candidate emails successfully delivered per organization.
type OrgEmailCount struct {
	ID             uint   `gorm:"primaryKey" json:"-"`
	OrgName        string `gorm:"size:255;not null;uniqueIndex" json:"org_name"`
	EmailSentCount int64  `gorm:"not null;default:0" json:"email_sent_count"`
}
