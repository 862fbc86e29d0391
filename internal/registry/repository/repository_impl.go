package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/registry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSchool(ctx context.Context, db *gorm.DB, school *domain.School) error {
	return db.WithContext(ctx).Create(school).Error
}

func (r *repo) SaveSchool(ctx context.Context, db *gorm.DB, school *domain.School) error {
	return db.WithContext(ctx).Save(school).Error
}

func (r *repo) SchoolsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.School, error) {
	var schools []*domain.School
	err := db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&schools).Error
	return schools, err
}

func (r *repo) SchoolsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.School, error) {
	var schools []*domain.School
	err := db.WithContext(ctx).Where("batch_id <> ?", batchID).Order("id").Find(&schools).Error
	return schools, err
}

func (r *repo) FindSchoolByNaturalKey(ctx context.Context, db *gorm.DB, crNumber, ministrySchoolID string, excludeID snowflake.ID) (*domain.School, error) {
	crNumber = strings.TrimSpace(crNumber)
	ministrySchoolID = strings.TrimSpace(ministrySchoolID)
	if crNumber == "" && ministrySchoolID == "" {
		return nil, nil
	}

	stmt := db.WithContext(ctx).Model(&domain.School{}).Where("id <> ?", excludeID)
	switch {
	case crNumber != "" && ministrySchoolID != "":
		stmt = stmt.Where("LOWER(cr_number) = ? OR ministry_school_id = ?", strings.ToLower(crNumber), ministrySchoolID)
	case crNumber != "":
		stmt = stmt.Where("LOWER(cr_number) = ?", strings.ToLower(crNumber))
	default:
		stmt = stmt.Where("ministry_school_id = ?", ministrySchoolID)
	}

	var school domain.School
	err := stmt.Order("id").First(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *repo) FindSchoolByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.School, error) {
	var school domain.School
	err := db.WithContext(ctx).First(&school, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *repo) InsertStudent(ctx context.Context, db *gorm.DB, student *domain.Student) error {
	return db.WithContext(ctx).Create(student).Error
}

func (r *repo) SaveStudent(ctx context.Context, db *gorm.DB, student *domain.Student) error {
	return db.WithContext(ctx).Save(student).Error
}

func (r *repo) StudentsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.Student, error) {
	var students []*domain.Student
	err := db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&students).Error
	return students, err
}

func (r *repo) StudentsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.Student, error) {
	var students []*domain.Student
	err := db.WithContext(ctx).Where("batch_id <> ?", batchID).Order("id").Find(&students).Error
	return students, err
}

func (r *repo) FindStudentByNaturalKey(ctx context.Context, db *gorm.DB, ministryStudentID, nationalID string, excludeID snowflake.ID) (*domain.Student, error) {
	ministryStudentID = strings.TrimSpace(ministryStudentID)
	nationalID = strings.TrimSpace(nationalID)
	if ministryStudentID == "" && nationalID == "" {
		return nil, nil
	}

	stmt := db.WithContext(ctx).Model(&domain.Student{}).Where("id <> ?", excludeID)
	switch {
	case ministryStudentID != "" && nationalID != "":
		stmt = stmt.Where("ministry_student_id = ? OR national_id = ?", ministryStudentID, nationalID)
	case ministryStudentID != "":
		stmt = stmt.Where("ministry_student_id = ?", ministryStudentID)
	default:
		stmt = stmt.Where("national_id = ?", nationalID)
	}

	var student domain.Student
	err := stmt.Order("id").First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *repo) FindStudentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Student, error) {
	var student domain.Student
	err := db.WithContext(ctx).First(&student, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *repo) InsertParent(ctx context.Context, db *gorm.DB, parent *domain.Parent) error {
	return db.WithContext(ctx).Create(parent).Error
}

func (r *repo) SaveParent(ctx context.Context, db *gorm.DB, parent *domain.Parent) error {
	return db.WithContext(ctx).Save(parent).Error
}

func (r *repo) ParentsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.Parent, error) {
	var parents []*domain.Parent
	err := db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&parents).Error
	return parents, err
}

func (r *repo) ParentsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.Parent, error) {
	var parents []*domain.Parent
	err := db.WithContext(ctx).Where("batch_id <> ?", batchID).Order("id").Find(&parents).Error
	return parents, err
}

func (r *repo) FindParentByNaturalKey(ctx context.Context, db *gorm.DB, ministryParentID, nationalID string, excludeID snowflake.ID) (*domain.Parent, error) {
	ministryParentID = strings.TrimSpace(ministryParentID)
	nationalID = strings.TrimSpace(nationalID)
	if ministryParentID == "" && nationalID == "" {
		return nil, nil
	}

	stmt := db.WithContext(ctx).Model(&domain.Parent{}).Where("id <> ?", excludeID)
	switch {
	case ministryParentID != "" && nationalID != "":
		stmt = stmt.Where("ministry_parent_id = ? OR national_id = ?", ministryParentID, nationalID)
	case ministryParentID != "":
		stmt = stmt.Where("ministry_parent_id = ?", ministryParentID)
	default:
		stmt = stmt.Where("national_id = ?", nationalID)
	}

	var parent domain.Parent
	err := stmt.Order("id").First(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *repo) FindParentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Parent, error) {
	var parent domain.Parent
	err := db.WithContext(ctx).First(&parent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *repo) InsertLicense(ctx context.Context, db *gorm.DB, license *domain.License) error {
	return db.WithContext(ctx).Create(license).Error
}

func (r *repo) Licenses(ctx context.Context, db *gorm.DB) ([]*domain.License, error) {
	var licenses []*domain.License
	err := db.WithContext(ctx).Order("id").Find(&licenses).Error
	return licenses, err
}

func (r *repo) InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) error {
	return db.WithContext(ctx).Create(enrollment).Error
}
