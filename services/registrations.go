package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"lanos_go/models"

	"github.com/xuri/excelize/v2"
)

// RegistrationFilter narrows the admin registration list. Search matches
// name, email, college and city case-insensitively; the other fields are
// exact (case-insensitive) matches.
type RegistrationFilter struct {
	Search          string
	PreferredCourse string
	HearAboutExam   string
	ReferralCode    string
	// HasReferral keeps only records with a referral code.
	HasReferral bool
}

func (f RegistrationFilter) empty() bool {
	return strings.TrimSpace(f.Search) == "" && f.PreferredCourse == "" &&
		f.HearAboutExam == "" && f.ReferralCode == "" && !f.HasReferral
}

// FilterRegistrations returns the records matching f, keeping their order.
func FilterRegistrations(records []models.RegistrationRecord, f RegistrationFilter) []models.RegistrationRecord {
	if f.empty() {
		return records
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.RegistrationRecord, 0, len(records))
	for _, r := range records {
		if term != "" &&
			!strings.Contains(strings.ToLower(r.FullName), term) &&
			!strings.Contains(strings.ToLower(r.EmailAddress), term) &&
			!strings.Contains(strings.ToLower(r.CollegeName), term) &&
			!strings.Contains(strings.ToLower(r.CityTown), term) {
			continue
		}
		if f.PreferredCourse != "" && !strings.EqualFold(r.PreferredCourse, f.PreferredCourse) {
			continue
		}
		if f.HearAboutExam != "" && !strings.EqualFold(r.HearAboutExam, f.HearAboutExam) {
			continue
		}
		if f.ReferralCode != "" && !strings.EqualFold(r.ReferralCode, f.ReferralCode) {
			continue
		}
		if f.HasReferral && r.ReferralCode == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Statistics computes the dashboard counters from a record list, used when
// the backend statistics endpoint is unavailable.
func Statistics(records []models.RegistrationRecord) models.RegistrationStatistics {
	stats := models.RegistrationStatistics{TotalRegistrations: int64(len(records))}
	for _, r := range records {
		if r.ReferralCode != "" {
			stats.RegistrationsWithReferralCode++
		}
	}
	return stats
}

var exportHeader = []string{
	"ID", "Full Name", "Mobile Number", "Email Address", "College Name",
	"Current Course and Year", "City/Town", "Preferred Course", "Heard Via",
	"Referral Code", "Created At",
}

// RegistrationsWorkbook renders records as an xlsx file.
func RegistrationsWorkbook(records []models.RegistrationRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Registrations"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, r := range records {
		created := ""
		if r.CreatedAt != nil {
			created = r.CreatedAt.Format(time.RFC3339)
		}
		row := []interface{}{
			string(r.ID), r.FullName, r.MobileNumber, r.EmailAddress, r.CollegeName,
			r.CurrentCourseAndYear, r.CityTown, r.PreferredCourse, r.HearAboutExam,
			r.ReferralCode, created,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheet, "A", "K", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
