package service

import (
	registrydomain "github.com/madaris/dq/internal/registry/domain"
)

// Merging copies every non-empty incoming field over the existing record and
// returns before/after maps holding only the fields that actually changed.
// Empty incoming values never clobber existing data.

func mergeField(before, after map[string]any, name string, dst *string, src string) {
	if src == "" || src == *dst {
		return
	}
	before[name] = *dst
	after[name] = src
	*dst = src
}

func mergeSchool(existing, incoming *registrydomain.School) (before, after map[string]any) {
	before = map[string]any{}
	after = map[string]any{}
	mergeField(before, after, "madaris_school_id", &existing.MadarisSchoolID, incoming.MadarisSchoolID)
	mergeField(before, after, "ministry_school_id", &existing.MinistrySchoolID, incoming.MinistrySchoolID)
	mergeField(before, after, "cr_number", &existing.CRNumber, incoming.CRNumber)
	mergeField(before, after, "license_number", &existing.LicenseNumber, incoming.LicenseNumber)
	mergeField(before, after, "name_ar", &existing.NameAr, incoming.NameAr)
	mergeField(before, after, "name_en", &existing.NameEn, incoming.NameEn)
	mergeField(before, after, "region", &existing.Region, incoming.Region)
	mergeField(before, after, "city", &existing.City, incoming.City)
	mergeField(before, after, "district", &existing.District, incoming.District)
	mergeField(before, after, "stages_csv", &existing.StagesCsv, incoming.StagesCsv)
	mergeField(before, after, "status", &existing.Status, incoming.Status)
	return before, after
}

func mergeStudent(existing, incoming *registrydomain.Student) (before, after map[string]any) {
	before = map[string]any{}
	after = map[string]any{}
	mergeField(before, after, "ministry_student_id", &existing.MinistryStudentID, incoming.MinistryStudentID)
	mergeField(before, after, "national_id", &existing.NationalID, incoming.NationalID)
	mergeField(before, after, "full_name_ar", &existing.FullNameAr, incoming.FullNameAr)
	mergeField(before, after, "full_name_en", &existing.FullNameEn, incoming.FullNameEn)
	mergeField(before, after, "gender", &existing.Gender, incoming.Gender)
	mergeField(before, after, "nationality", &existing.Nationality, incoming.Nationality)
	mergeField(before, after, "grade", &existing.Grade, incoming.Grade)
	mergeField(before, after, "phones_csv", &existing.PhonesCsv, incoming.PhonesCsv)
	mergeField(before, after, "emails_csv", &existing.EmailsCsv, incoming.EmailsCsv)
	mergeField(before, after, "address", &existing.Address, incoming.Address)
	mergeField(before, after, "cr_number", &existing.CRNumber, incoming.CRNumber)
	mergeField(before, after, "ministry_school_id", &existing.MinistrySchoolID, incoming.MinistrySchoolID)
	if incoming.DOB != nil && (existing.DOB == nil || !existing.DOB.Equal(*incoming.DOB)) {
		if existing.DOB != nil {
			before["dob"] = existing.DOB.Format("2006-01-02")
		} else {
			before["dob"] = nil
		}
		after["dob"] = incoming.DOB.Format("2006-01-02")
		dob := *incoming.DOB
		existing.DOB = &dob
	}
	if incoming.CurrentSchoolID != nil && (existing.CurrentSchoolID == nil || *existing.CurrentSchoolID != *incoming.CurrentSchoolID) {
		if existing.CurrentSchoolID != nil {
			before["current_school_id"] = existing.CurrentSchoolID.String()
		} else {
			before["current_school_id"] = nil
		}
		after["current_school_id"] = incoming.CurrentSchoolID.String()
		id := *incoming.CurrentSchoolID
		existing.CurrentSchoolID = &id
	}
	return before, after
}

func mergeParent(existing, incoming *registrydomain.Parent) (before, after map[string]any) {
	before = map[string]any{}
	after = map[string]any{}
	mergeField(before, after, "ministry_parent_id", &existing.MinistryParentID, incoming.MinistryParentID)
	mergeField(before, after, "national_id", &existing.NationalID, incoming.NationalID)
	mergeField(before, after, "full_name_ar", &existing.FullNameAr, incoming.FullNameAr)
	mergeField(before, after, "full_name_en", &existing.FullNameEn, incoming.FullNameEn)
	mergeField(before, after, "phones_csv", &existing.PhonesCsv, incoming.PhonesCsv)
	mergeField(before, after, "emails_csv", &existing.EmailsCsv, incoming.EmailsCsv)
	mergeField(before, after, "address", &existing.Address, incoming.Address)
	return before, after
}

func snapshotSchool(s *registrydomain.School) map[string]any {
	return map[string]any{
		"master_school_id":   s.MasterSchoolID,
		"madaris_school_id":  s.MadarisSchoolID,
		"ministry_school_id": s.MinistrySchoolID,
		"cr_number":          s.CRNumber,
		"license_number":     s.LicenseNumber,
		"name_ar":            s.NameAr,
		"name_en":            s.NameEn,
		"region":             s.Region,
		"city":               s.City,
	}
}

func snapshotStudent(s *registrydomain.Student) map[string]any {
	snap := map[string]any{
		"master_student_id":   s.MasterStudentID,
		"ministry_student_id": s.MinistryStudentID,
		"national_id":         s.NationalID,
		"full_name_ar":        s.FullNameAr,
		"grade":               s.Grade,
		"cr_number":           s.CRNumber,
	}
	if s.DOB != nil {
		snap["dob"] = s.DOB.Format("2006-01-02")
	}
	return snap
}

func snapshotParent(p *registrydomain.Parent) map[string]any {
	return map[string]any{
		"master_parent_id":   p.MasterParentID,
		"ministry_parent_id": p.MinistryParentID,
		"national_id":        p.NationalID,
		"full_name_ar":       p.FullNameAr,
		"phones_csv":         p.PhonesCsv,
	}
}
