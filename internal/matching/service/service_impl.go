package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	"github.com/madaris/dq/internal/config"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	"github.com/madaris/dq/internal/matching/domain"
	"github.com/madaris/dq/internal/metrics"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"github.com/madaris/dq/pkg/textnorm"
	"github.com/madaris/dq/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFuzzyCandidates = 3

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Registry registrydomain.Repository
	Batches  batchdomain.Repository
	Issues   issuedomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	registry registrydomain.Repository
	batches  batchdomain.Repository
	issues   issuedomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:      p.Cfg,
		db:       p.DB,
		log:      p.Log.Named("matching.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		registry: p.Registry,
		batches:  p.Batches,
		issues:   p.Issues,
		metrics:  p.Metrics,
	}
}

// RunMatching links the batch's new records to existing records or licenses,
// records match candidates and raises data-quality issues. The candidate and
// issue logs are append-only, so re-running a batch adds rows rather than
// rewriting them. The only record mutation is the high-confidence school
// auto-apply.
func (s *Service) RunMatching(ctx context.Context, batchID snowflake.ID) (snowflake.ID, error) {
	batch, err := s.batches.FindByID(ctx, s.db, batchID)
	if err != nil {
		return 0, err
	}
	if batch == nil {
		return 0, batchdomain.ErrNotFound
	}

	if err := s.matchSchools(ctx, batchID); err != nil {
		return 0, err
	}
	if err := s.matchStudents(ctx, batchID); err != nil {
		return 0, err
	}
	if err := s.matchParents(ctx, batchID); err != nil {
		return 0, err
	}

	if err := s.batches.UpdateStatus(ctx, s.db, batchID, batchdomain.StatusMatchingCompleted); err != nil {
		return 0, err
	}

	s.log.Info("matching completed", zap.String("batch_id", batchID.String()))
	return batchID, nil
}

// Candidates returns the recorded match candidates for one record, best
// confidence first.
func (s *Service) Candidates(ctx context.Context, entityType registrydomain.EntityType, sourceID snowflake.ID) ([]*domain.MatchCandidate, error) {
	return s.repo.BySource(ctx, s.db, entityType, sourceID)
}

func (s *Service) matchSchools(ctx context.Context, batchID snowflake.ID) error {
	schools, err := s.registry.SchoolsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	licenses, err := s.registry.Licenses(ctx, s.db)
	if err != nil {
		return err
	}

	byCR := make(map[string]*registrydomain.License, len(licenses))
	for _, lic := range licenses {
		cr := strings.ToLower(strings.TrimSpace(lic.CRNumber))
		if cr != "" {
			byCR[cr] = lic
		}
	}

	for _, school := range schools {
		s.countMatched(registrydomain.EntitySchool)

		if lic, ok := byCR[strings.ToLower(strings.TrimSpace(school.CRNumber))]; ok && strings.TrimSpace(school.CRNumber) != "" {
			candidate := s.newCandidate(registrydomain.EntitySchool, school.ID, lic.ID,
				"Madaris", "Tarkhees", 0.99, domain.MethodExactCR,
				fmt.Sprintf("commercial registration %s matches licensed CR", school.CRNumber))
			if err := s.repo.Insert(ctx, s.db, candidate); err != nil {
				return err
			}
			if err := s.applyLicense(ctx, school, lic); err != nil {
				return err
			}
			continue
		}

		best, err := s.fuzzySchoolCandidates(ctx, school, licenses)
		if err != nil {
			return err
		}
		if best == nil {
			if _, err := s.issues.Raise(ctx, registrydomain.EntitySchool, school.ID, issuedomain.TypeNoMatch,
				fmt.Sprintf("school %q has no licensed CR and no name match above %.2f", school.NameAr, s.cfg.FuzzyMatchFloor)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypeNoMatch)
			continue
		}

		if best.ConfidenceScore >= s.cfg.AutoApplyConfidence {
			lic := licenseByID(licenses, best.TargetEntityID)
			if lic != nil {
				if err := s.applyLicense(ctx, school, lic); err != nil {
					return err
				}
			}
		} else if best.ConfidenceScore < s.cfg.ReviewConfidence {
			if _, err := s.issues.Raise(ctx, registrydomain.EntitySchool, school.ID, issuedomain.TypeLowConfidenceMatch,
				fmt.Sprintf("best name match for %q scored %.2f, below review threshold", school.NameAr, best.ConfidenceScore)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypeLowConfidenceMatch)
		}
	}
	return nil
}

// fuzzySchoolCandidates scores the school name against every license name,
// records up to maxFuzzyCandidates above the floor and returns the best one.
func (s *Service) fuzzySchoolCandidates(ctx context.Context, school *registrydomain.School, licenses []*registrydomain.License) (*domain.MatchCandidate, error) {
	type scored struct {
		lic   *registrydomain.License
		score float64
	}
	var hits []scored
	for _, lic := range licenses {
		score := textnorm.Similarity(school.NameAr, lic.InstitutionName)
		if score > s.cfg.FuzzyMatchFloor {
			hits = append(hits, scored{lic: lic, score: score})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxFuzzyCandidates {
		hits = hits[:maxFuzzyCandidates]
	}

	var best *domain.MatchCandidate
	for _, hit := range hits {
		candidate := s.newCandidate(registrydomain.EntitySchool, school.ID, hit.lic.ID,
			"Madaris", "Tarkhees", hit.score, domain.MethodFuzzyName,
			fmt.Sprintf("name similarity %.2f against licensed institution %q", hit.score, hit.lic.InstitutionName))
		if err := s.repo.Insert(ctx, s.db, candidate); err != nil {
			return nil, err
		}
		if best == nil {
			best = candidate
		}
	}
	return best, nil
}

func (s *Service) applyLicense(ctx context.Context, school *registrydomain.School, lic *registrydomain.License) error {
	changed := false
	if lic.LicenseNumber != "" && school.LicenseNumber != lic.LicenseNumber {
		school.LicenseNumber = lic.LicenseNumber
		changed = true
	}
	if lic.MinistrySchoolID != "" && school.MinistrySchoolID != lic.MinistrySchoolID {
		school.MinistrySchoolID = lic.MinistrySchoolID
		changed = true
	}
	if school.CRNumber == "" && lic.CRNumber != "" {
		school.CRNumber = lic.CRNumber
		changed = true
	}
	if !changed {
		return nil
	}
	school.LastUpdated = time.Now().UTC()
	return s.registry.SaveSchool(ctx, s.db, school)
}

func (s *Service) matchStudents(ctx context.Context, batchID snowflake.ID) error {
	newStudents, err := s.registry.StudentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	existing, err := s.registry.StudentsExcludingBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}

	byNationalID := make(map[string][]*registrydomain.Student)
	for _, st := range existing {
		nid := strings.TrimSpace(st.NationalID)
		if nid != "" {
			byNationalID[nid] = append(byNationalID[nid], st)
		}
	}

	for _, student := range newStudents {
		s.countMatched(registrydomain.EntityStudent)

		nid := strings.TrimSpace(student.NationalID)
		if dups := byNationalID[nid]; nid != "" && len(dups) > 0 {
			target := mostSimilarStudent(student, dups)
			candidate := s.newCandidate(registrydomain.EntityStudent, student.ID, target.ID,
				"Noor", "Master", textnorm.Similarity(student.FullNameAr, target.FullNameAr),
				domain.MethodNationalID,
				fmt.Sprintf("national id %s already present on record %s", nid, target.ID))
			if err := s.repo.Insert(ctx, s.db, candidate); err != nil {
				return err
			}
			if _, err := s.issues.Raise(ctx, registrydomain.EntityStudent, student.ID, issuedomain.TypePotentialDuplicate,
				fmt.Sprintf("national id %s duplicates existing student %s", nid, target.ID)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypePotentialDuplicate)
		}

		if !validate.NationalID(student.NationalID) {
			if _, err := s.issues.Raise(ctx, registrydomain.EntityStudent, student.ID, issuedomain.TypeInvalidNationalID,
				fmt.Sprintf("national id %q is not a 10-digit number", student.NationalID)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypeInvalidNationalID)
		}
		if !validate.SchoolAgeDOB(student.DOB) {
			if _, err := s.issues.Raise(ctx, registrydomain.EntityStudent, student.ID, issuedomain.TypeInvalidDOB,
				"date of birth missing or implausible for a school-age student"); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypeInvalidDOB)
		}
	}
	return nil
}

func (s *Service) matchParents(ctx context.Context, batchID snowflake.ID) error {
	newParents, err := s.registry.ParentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	existing, err := s.registry.ParentsExcludingBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}

	byNationalID := make(map[string][]*registrydomain.Parent)
	for _, p := range existing {
		nid := strings.TrimSpace(p.NationalID)
		if nid != "" {
			byNationalID[nid] = append(byNationalID[nid], p)
		}
	}

	for _, parent := range newParents {
		s.countMatched(registrydomain.EntityParent)

		nid := strings.TrimSpace(parent.NationalID)
		if dups := byNationalID[nid]; nid != "" && len(dups) > 0 {
			target := mostSimilarParent(parent, dups)
			candidate := s.newCandidate(registrydomain.EntityParent, parent.ID, target.ID,
				"Noor", "Master", textnorm.Similarity(parent.FullNameAr, target.FullNameAr),
				domain.MethodNationalID,
				fmt.Sprintf("national id %s already present on record %s", nid, target.ID))
			if err := s.repo.Insert(ctx, s.db, candidate); err != nil {
				return err
			}
			if _, err := s.issues.Raise(ctx, registrydomain.EntityParent, parent.ID, issuedomain.TypePotentialDuplicate,
				fmt.Sprintf("national id %s duplicates existing parent %s", nid, target.ID)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypePotentialDuplicate)
		}

		if !validate.NationalID(parent.NationalID) {
			if _, err := s.issues.Raise(ctx, registrydomain.EntityParent, parent.ID, issuedomain.TypeInvalidNationalID,
				fmt.Sprintf("national id %q is not a 10-digit number", parent.NationalID)); err != nil {
				return err
			}
			s.countIssue(issuedomain.TypeInvalidNationalID)
		}
	}
	return nil
}

func (s *Service) newCandidate(entityType registrydomain.EntityType, sourceID, targetID snowflake.ID, left, right string, confidence float64, method domain.Method, reason string) *domain.MatchCandidate {
	c := &domain.MatchCandidate{
		ID:              s.genID.Generate(),
		EntityType:      entityType,
		SourceEntityID:  sourceID,
		TargetEntityID:  targetID,
		LeftSource:      left,
		RightSource:     right,
		ConfidenceScore: confidence,
		MatchMethod:     method,
		Reason:          reason,
		Disposition:     s.disposition(confidence),
		CreatedAt:       time.Now().UTC(),
	}
	if s.metrics != nil {
		s.metrics.CandidatesTotal.WithLabelValues(string(method)).Inc()
	}
	return c
}

func (s *Service) disposition(confidence float64) domain.Disposition {
	switch {
	case confidence >= s.cfg.AutoApplyConfidence:
		return domain.DispositionAutoAccept
	case confidence >= s.cfg.ReviewConfidence:
		return domain.DispositionReview
	default:
		return domain.DispositionReject
	}
}

func (s *Service) countMatched(entityType registrydomain.EntityType) {
	if s.metrics != nil {
		s.metrics.RecordsMatched.WithLabelValues(string(entityType)).Inc()
	}
}

func (s *Service) countIssue(issueType string) {
	if s.metrics != nil {
		s.metrics.IssuesRaised.WithLabelValues(issueType).Inc()
	}
}

func licenseByID(licenses []*registrydomain.License, id snowflake.ID) *registrydomain.License {
	for _, lic := range licenses {
		if lic.ID == id {
			return lic
		}
	}
	return nil
}

func mostSimilarStudent(student *registrydomain.Student, candidates []*registrydomain.Student) *registrydomain.Student {
	best := candidates[0]
	bestScore := textnorm.Similarity(student.FullNameAr, best.FullNameAr)
	for _, c := range candidates[1:] {
		if score := textnorm.Similarity(student.FullNameAr, c.FullNameAr); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func mostSimilarParent(parent *registrydomain.Parent, candidates []*registrydomain.Parent) *registrydomain.Parent {
	best := candidates[0]
	bestScore := textnorm.Similarity(parent.FullNameAr, best.FullNameAr)
	for _, c := range candidates[1:] {
		if score := textnorm.Similarity(parent.FullNameAr, c.FullNameAr); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
