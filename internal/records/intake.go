package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gorm.io/datatypes"

	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/storage"
)

// IntakeForm is the multipart body of the public candidate form.
type IntakeForm struct {
	FullName             string `form:"Full_Name"`
	Email                string `form:"Email"`
	Phone                string `form:"Phone_No"`
	Domain               string `form:"Domain"`
	SubDomain            string `form:"Sub_Domain"`
	DateOfBirth          string `form:"dob"`
	Gender               string `form:"gender"`
	Location             string `form:"location"`
	Pincode              string `form:"pincode"`
	State                string `form:"state"`
	City                 string `form:"city"`
	Country              string `form:"country"`
	EmergencyPhone       string `form:"emergencyPhone"`
	ContactName          string `form:"contactName"`
	ContactRelation      string `form:"contactRelation"`
	HighestQualification string `form:"highestQualification"`
	Degree               string `form:"degree"`
	CourseName           string `form:"courseName"`
	CollegeName          string `form:"collegeName"`
	UniversityName       string `form:"universityName"`
	YearOfPassing        string `form:"yearOfPassing"`
	Marks                string `form:"marks"`
	InternshipExperience string `form:"internship_experience"`
	Skills               string `form:"skills"`
	ResumeURL            string `form:"resume_url"`
}

// Upload is a resume file attached to the form. Body is read twice: once by the scanner and
// once by the store.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.ReadSeeker
}

// SplitName 拆分姓名：首个词为名，末个词为姓，中间的词为中间名。
func SplitName(full string) (first, middle, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	}
	return parts[0], strings.Join(parts[1:len(parts)-1], " "), parts[len(parts)-1]
}

func splitSkills(raw string) []string {
	skills := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// Submit stores the form, and the resume when one is attached.
func (s *Store) Submit(ctx context.Context, f IntakeForm, resume *Upload) (*database.CandidateDetail, error) {
	if strings.TrimSpace(f.FullName) == "" || strings.TrimSpace(f.Email) == "" {
		return nil, ErrMissingField
	}

	skills, err := json.Marshal(splitSkills(f.Skills))
	if err != nil {
		return nil, fmt.Errorf("encode skills: %w", err)
	}

	resumeRef := strings.TrimSpace(f.ResumeURL)
	if resume != nil {
		key, err := s.storeResume(ctx, resume)
		if err != nil {
			return nil, err
		}
		resumeRef = key
	}

	first, middle, last := SplitName(f.FullName)
	zero := 0
	row := &database.CandidateDetail{
		FirstName:                first,
		MiddleName:               middle,
		LastName:                 last,
		Email:                    strings.TrimSpace(f.Email),
		ContactNumber:            strings.TrimSpace(f.Phone),
		Domain:                   strings.TrimSpace(f.Domain),
		SubDomain:                strings.TrimSpace(f.SubDomain),
		Marks:                    strings.TrimSpace(f.Marks),
		DateOfBirth:              strings.TrimSpace(f.DateOfBirth),
		Gender:                   strings.TrimSpace(f.Gender),
		CurrentLocation:          strings.TrimSpace(f.Location),
		Pincode:                  strings.TrimSpace(f.Pincode),
		State:                    strings.TrimSpace(f.State),
		City:                     strings.TrimSpace(f.City),
		Country:                  strings.TrimSpace(f.Country),
		EmergencyContactNumber:   strings.TrimSpace(f.EmergencyPhone),
		EmergencyContactName:     strings.TrimSpace(f.ContactName),
		EmergencyContactRelation: strings.TrimSpace(f.ContactRelation),
		HighestQualification:     strings.TrimSpace(f.HighestQualification),
		Degree:                   strings.TrimSpace(f.Degree),
		CourseName:               strings.TrimSpace(f.CourseName),
		College:                  strings.TrimSpace(f.CollegeName),
		University:               strings.TrimSpace(f.UniversityName),
		YearOfPassing:            strings.TrimSpace(f.YearOfPassing),
		InternshipExperience:     strings.TrimSpace(f.InternshipExperience),
		Skills:                   datatypes.JSON(skills),
		ResumeURL:                resumeRef,
		EmailSent:                &zero,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if resume != nil {
			if derr := s.objects.Delete(ctx, resumeRef); derr != nil {
				s.logger.Warn("remove orphan resume failed", slog.String("key", resumeRef), slog.Any("error", derr))
			}
		}
		return nil, errcode.Persistence("create candidate detail", err)
	}
	return row, nil
}

func (s *Store) storeResume(ctx context.Context, up *Upload) (string, error) {
	if s.objects == nil {
		return "", errcode.New(errcode.SystemError, "resume storage is not configured")
	}
	if err := s.scanner.Scan(ctx, up.Body); err != nil {
		if errors.Is(err, storage.ErrInfected) {
			return "", err
		}
		return "", errcode.Wrap(errcode.SystemError, "scan resume", err)
	}
	if _, err := up.Body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind resume: %w", err)
	}

	key := storage.ResumeKey("resume", up.Filename, s.now())
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.objects.Put(ctx, key, up.Body, up.Size, contentType); err != nil {
		return "", errcode.Wrap(errcode.SystemError, "store resume", err)
	}
	return key, nil
}
