package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mikepea/succession/pkg/succession/auth"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/permissions"
	"github.com/mikepea/succession/pkg/succession/plans"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Column defaults applied to blank cells
const (
	DefaultImportedUserRole = "employee"
	DefaultBusinessLine     = "Core Business"
	DefaultCriticality      = models.CriticalityMedium
)

// Counts is the number of records inserted per entity
type Counts struct {
	Users int `json:"users"`
	Roles int `json:"roles"`
	Plans int `json:"plans"`
}

// Skip reports a row that was not imported
type Skip struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report is the outcome of one workbook import
type Report struct {
	Inserted Counts `json:"inserted"`
	Skipped  []Skip `json:"skipped"`
}

func (r *Report) skip(sheet string, number int, format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, Skip{Sheet: sheet, Row: number, Reason: fmt.Sprintf(format, args...)})
}

func (r *Report) skippedIn(sheet string) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Sheet == sheet {
			n++
		}
	}
	return n
}

// Importer loads users, roles and succession plans from a workbook. Sheets
// are processed in that order so plans can reference roles from the same
// workbook. The whole workbook is one transaction.
type Importer struct {
	db          *gorm.DB
	emailDomain string
	metrics     *metrics.Metrics
}

// New creates an importer. emailDomain completes generated user emails.
func New(db *gorm.DB, emailDomain string, m *metrics.Metrics) *Importer {
	return &Importer{db: db, emailDomain: emailDomain, metrics: m}
}

// Import reads wb on behalf of actor. Row-level problems are reported in
// the result; any storage error rolls back the whole workbook.
func (im *Importer) Import(ctx context.Context, actor *permissions.Actor, wb *excelize.File) (*Report, error) {
	report := &Report{Skipped: []Skip{}}

	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := im.importUsers(tx, actor, wb, report); err != nil {
			return err
		}
		if err := im.importRoles(tx, actor, wb, report); err != nil {
			return err
		}
		return im.importPlans(tx, actor, wb, report)
	})
	if err != nil {
		return nil, err
	}

	im.observe(SheetUsers, report.Inserted.Users, report.skippedIn(SheetUsers))
	im.observe(SheetRoles, report.Inserted.Roles, report.skippedIn(SheetRoles))
	im.observe(SheetSuccessionPlans, report.Inserted.Plans, report.skippedIn(SheetSuccessionPlans))
	return report, nil
}

func (im *Importer) observe(sheet string, inserted, skipped int) {
	if im.metrics == nil {
		return
	}
	im.metrics.ImportedRows.WithLabelValues(sheet, "inserted").Add(float64(inserted))
	im.metrics.ImportedRows.WithLabelValues(sheet, "skipped").Add(float64(skipped))
}

// generatedEmail derives an address from a display name
func (im *Importer) generatedEmail(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", ".") + "@" + im.emailDomain
}

func (im *Importer) importUsers(tx *gorm.DB, actor *permissions.Actor, wb *excelize.File, report *Report) error {
	name, ok := findSheet(wb, SheetUsers)
	if !ok {
		return nil
	}
	rows, err := readRows(wb, name)
	if err != nil {
		return err
	}

	// Imported users are directory entries, not login accounts
	noLogin, err := auth.HashPassword(uuid.NewString())
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, r := range rows {
		if r.blank() {
			continue
		}
		fullName := r.get("name")
		if fullName == "" {
			report.skip(SheetUsers, r.number, "missing name")
			continue
		}

		email := strings.ToLower(r.get("email"))
		if email == "" {
			email = im.generatedEmail(fullName)
		}
		if seen[email] {
			report.skip(SheetUsers, r.number, "duplicate email %s", email)
			continue
		}
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			report.skip(SheetUsers, r.number, "email %s already exists", email)
			continue
		}
		department := valueOr(r.get("department"), actor.Department)
		if !actor.CanSeeDepartment(department) {
			report.skip(SheetUsers, r.number, "department %s is outside your scope", department)
			continue
		}
		seen[email] = true

		user := models.User{
			Name:         fullName,
			Email:        email,
			PasswordHash: noLogin,
			Role:         valueOr(r.get("role"), DefaultImportedUserRole),
			Department:   department,
			Status:       models.UserStatusInactive,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		report.Inserted.Users++
	}
	return nil
}

func (im *Importer) importRoles(tx *gorm.DB, actor *permissions.Actor, wb *excelize.File, report *Report) error {
	name, ok := findSheet(wb, SheetRoles)
	if !ok {
		return nil
	}
	rows, err := readRows(wb, name)
	if err != nil {
		return err
	}

	for _, r := range rows {
		if r.blank() {
			continue
		}
		title := r.get("title")
		if title == "" {
			report.skip(SheetRoles, r.number, "missing title")
			continue
		}
		criticality := valueOr(r.get("criticality"), DefaultCriticality)
		if !models.ValidCriticality(criticality) {
			report.skip(SheetRoles, r.number, "invalid criticality %s", criticality)
			continue
		}
		department := valueOr(r.get("department"), actor.Department)
		if !actor.CanSeeDepartment(department) {
			report.skip(SheetRoles, r.number, "department %s is outside your scope", department)
			continue
		}

		role := models.Role{
			Title:        title,
			Name:         valueOr(r.get("name"), title),
			Level:        r.get("level"),
			Department:   department,
			BusinessLine: valueOr(r.get("business_line"), DefaultBusinessLine),
			Criticality:  criticality,
		}
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		report.Inserted.Roles++
	}
	return nil
}

func (im *Importer) importPlans(tx *gorm.DB, actor *permissions.Actor, wb *excelize.File, report *Report) error {
	name, ok := findSheet(wb, SheetSuccessionPlans)
	if !ok {
		return nil
	}
	rows, err := readRows(wb, name)
	if err != nil {
		return err
	}

	// Title lookup covers roles inserted earlier in this transaction.
	// Only roles in the actor's scope can receive plans.
	var roles []models.Role
	if err := tx.Order("id").Find(&roles).Error; err != nil {
		return err
	}
	byTitle := make(map[string]uint, len(roles))
	byID := make(map[uint]bool, len(roles))
	for _, role := range roles {
		visible := actor.CanSeeDepartment(role.Department)
		byID[role.ID] = visible
		if visible {
			byTitle[role.Title] = role.ID
		}
	}

	for _, r := range rows {
		if r.blank() {
			continue
		}

		var roleID uint
		if s := r.get("role_id"); s != "" {
			if n, err := parseInt(s); err == nil && n > 0 {
				visible, exists := byID[uint(n)]
				if exists && !visible {
					report.skip(SheetSuccessionPlans, r.number, "role %d is outside your scope", n)
					continue
				}
				if visible {
					roleID = uint(n)
				}
			}
		}
		if roleID == 0 {
			roleID = byTitle[r.get("role_title")]
		}
		if roleID == 0 {
			report.skip(SheetSuccessionPlans, r.number, "unknown role")
			continue
		}

		incumbent := r.get("incumbent_name")
		if incumbent == "" {
			report.skip(SheetSuccessionPlans, r.number, "missing incumbent_name")
			continue
		}
		tenure := 0
		if s := r.get("incumbent_tenure"); s != "" {
			n, err := parseInt(s)
			if err != nil || n < 0 {
				report.skip(SheetSuccessionPlans, r.number, "invalid incumbent_tenure %s", s)
				continue
			}
			tenure = n
		}

		plan := models.SuccessionPlan{
			RoleID:              roleID,
			IncumbentName:       incumbent,
			IncumbentEmployeeID: r.get("incumbent_employee_id"),
			IncumbentTenure:     tenure,
			RetirementDate:      plans.ParseOptionalDate(r.get("retirement_date")),
			ReadinessLevel:      valueOr(r.get("readiness_level"), models.DefaultReadinessLevel),
		}
		if err := tx.Create(&plan).Error; err != nil {
			return err
		}
		report.Inserted.Plans++
	}
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// parseInt accepts integral cell text such as "12" or "12.0"
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}
