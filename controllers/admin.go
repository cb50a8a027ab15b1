package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"lanos_go/config"
	"lanos_go/middleware"
	"lanos_go/models"
	"lanos_go/services"
	"lanos_go/services/audit"
	"lanos_go/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// RegistrationSource is the read side of the registration API.
type RegistrationSource interface {
	Registrations(ctx context.Context) ([]models.RegistrationRecord, error)
	Statistics(ctx context.Context) (models.RegistrationStatistics, error)
	ReferralCodes(ctx context.Context) ([]models.ReferralCode, error)
	ValidateReferral(ctx context.Context, code string) (models.ReferralValidation, error)
}

// Archiver stores exports outside the process.
type Archiver interface {
	Upload(ctx context.Context, fileName string, data []byte, records int, requestedBy string) (*models.ExportArchive, error)
	URL(key string) string
}

type SubmissionLister interface {
	List(ctx context.Context, q audit.Query) ([]models.SubmissionLog, int64, error)
}

// AdminController serves the dashboard API.
type AdminController struct {
	source      RegistrationSource
	submissions SubmissionLister
	archive     Archiver
	now         func() time.Time
}

// NewAdminController wires the dashboard. submissions and archive may be
// nil when MySQL or S3 are not configured.
func NewAdminController(source RegistrationSource, submissions SubmissionLister, archive Archiver) *AdminController {
	return &AdminController{source: source, submissions: submissions, archive: archive, now: time.Now}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login checks the configured admin credentials and returns a JWT token
func (ac *AdminController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Username and password are required",
		})
	}

	cfg := config.AppConfig
	if req.Username != cfg.AdminUsername || cfg.AdminPasswordHash == "" ||
		utils.CheckPassword(req.Password, cfg.AdminPasswordHash) != nil {
		logrus.WithFields(logrus.Fields{"username": req.Username, "ip": c.IP()}).Warn("admin login failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := middleware.GenerateToken(req.Username, "admin")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	logrus.WithField("username", req.Username).Info("admin logged in")
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user": fiber.Map{
			"username": req.Username,
			"role":     "admin",
		},
	})
}

// GetStatistics returns the dashboard counters. When the statistics endpoint
// fails they are computed from the full registration list.
func (ac *AdminController) GetStatistics(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := ac.source.Statistics(ctx)
	if err == nil {
		return c.JSON(stats)
	}
	logrus.WithError(err).Warn("statistics endpoint failed, computing locally")

	records, err := ac.source.Registrations(ctx)
	if err != nil {
		return upstreamError(c, "Failed to fetch statistics", err)
	}
	return c.JSON(services.Statistics(records))
}

func filterFromQuery(c *fiber.Ctx) services.RegistrationFilter {
	return services.RegistrationFilter{
		Search:          c.Query("search"),
		PreferredCourse: c.Query("course"),
		HearAboutExam:   c.Query("source"),
		ReferralCode:    c.Query("referral_code"),
		HasReferral:     c.QueryBool("has_referral", false),
	}
}

// GetRegistrations returns filtered registrations with pagination
func (ac *AdminController) GetRegistrations(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}

	records, err := ac.source.Registrations(c.UserContext())
	if err != nil {
		return upstreamError(c, "Failed to fetch registrations", err)
	}
	filtered := services.FilterRegistrations(records, filterFromQuery(c))

	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"registrations": filtered[start:end],
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ExportRegistrations renders the filtered registrations as xlsx. With
// ?archive=true the file is stored in S3 and its location returned instead.
func (ac *AdminController) ExportRegistrations(c *fiber.Ctx) error {
	ctx := c.UserContext()
	records, err := ac.source.Registrations(ctx)
	if err != nil {
		return upstreamError(c, "Failed to fetch registrations", err)
	}
	filtered := services.FilterRegistrations(records, filterFromQuery(c))

	data, err := services.RegistrationsWorkbook(filtered)
	if err != nil {
		logrus.WithError(err).Error("failed to render registrations workbook")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build export",
		})
	}
	fileName := "registrations-" + ac.now().Format("2006-01-02") + ".xlsx"

	if !c.QueryBool("archive", false) {
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+fileName+`"`)
		return c.Send(data)
	}

	if ac.archive == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Export archive is not configured",
		})
	}
	requestedBy := ""
	if claims, err := middleware.GetCurrentClaims(c); err == nil {
		requestedBy = claims.Username
	}
	archive, err := ac.archive.Upload(ctx, fileName, data, len(filtered), requestedBy)
	if err != nil {
		logrus.WithError(err).Error("export archive upload failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to archive export",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"archive": archive,
		"url":     ac.archive.URL(archive.S3Key),
	})
}

func (ac *AdminController) GetReferralCodes(c *fiber.Ctx) error {
	codes, err := ac.source.ReferralCodes(c.UserContext())
	if err != nil {
		return upstreamError(c, "Failed to fetch referral codes", err)
	}
	return c.JSON(fiber.Map{"referral_codes": codes})
}

// ValidateReferralCode reports whether a code is known and active
func (ac *AdminController) ValidateReferralCode(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}
	res, err := ac.source.ValidateReferral(c.UserContext(), code)
	if err != nil {
		return upstreamError(c, "Failed to validate referral code", err)
	}
	return c.JSON(res)
}

// GetSubmissions lists audited submission attempts
func (ac *AdminController) GetSubmissions(c *fiber.Ctx) error {
	if ac.submissions == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Submission audit is not available",
		})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	rows, total, err := ac.submissions.List(c.UserContext(), audit.Query{
		FormID:  c.Query("form"),
		Outcome: c.Query("outcome"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to list submissions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch submissions",
		})
	}
	return c.JSON(fiber.Map{
		"submissions": rows,
		"total":       total,
	})
}

func upstreamError(c *fiber.Ctx, msg string, err error) error {
	logrus.WithError(err).Error(msg)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": msg,
	})
}
