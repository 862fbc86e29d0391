package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the single access path for master records. The natural-key
// finders are shared by the impact preview and the injection engine so both
// always classify a record the same way.
type Repository interface {
	InsertSchool(ctx context.Context, db *gorm.DB, school *School) error
	SaveSchool(ctx context.Context, db *gorm.DB, school *School) error
	SchoolsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*School, error)
	SchoolsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*School, error)
	FindSchoolByNaturalKey(ctx context.Context, db *gorm.DB, crNumber, ministrySchoolID string, excludeID snowflake.ID) (*School, error)
	FindSchoolByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*School, error)

	InsertStudent(ctx context.Context, db *gorm.DB, student *Student) error
	SaveStudent(ctx context.Context, db *gorm.DB, student *Student) error
	StudentsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*Student, error)
	StudentsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*Student, error)
	FindStudentByNaturalKey(ctx context.Context, db *gorm.DB, ministryStudentID, nationalID string, excludeID snowflake.ID) (*Student, error)
	FindStudentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Student, error)

	InsertParent(ctx context.Context, db *gorm.DB, parent *Parent) error
	SaveParent(ctx context.Context, db *gorm.DB, parent *Parent) error
	ParentsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*Parent, error)
	ParentsExcludingBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*Parent, error)
	FindParentByNaturalKey(ctx context.Context, db *gorm.DB, ministryParentID, nationalID string, excludeID snowflake.ID) (*Parent, error)
	FindParentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Parent, error)

	InsertLicense(ctx context.Context, db *gorm.DB, license *License) error
	Licenses(ctx context.Context, db *gorm.DB) ([]*License, error)

	InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *Enrollment) error
}
