package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"qrattendance/internal/attendance"
	"qrattendance/internal/auth"
	"qrattendance/internal/summary"
)

// Classifier decides attendance for one scan.
type Classifier interface {
	Classify(ctx context.Context, cardNo string, mode attendance.Mode, scanTime time.Time) (attendance.Outcome, error)
}

// Rows lists and counts stored attendance rows.
type Rows interface {
	ListRows(ctx context.Context, f attendance.ListFilter) ([]attendance.Row, error)
	CountByRemark(ctx context.Context, date string) (map[attendance.Status]int, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the attendance API.
type Handler struct {
	classifier Classifier
	rows       Rows
	tally      summary.Tally
	issuer     auth.Issuer
	apiURL     string
	location   *time.Location
	now        func() time.Time
	checks     map[string]HealthCheck
}

// Options configures a Handler.
type Options struct {
	Classifier Classifier
	Rows       Rows
	Tally      summary.Tally
	Issuer     auth.Issuer
	APIURL     string
	Location   *time.Location
	Now        func() time.Time
	Checks     map[string]HealthCheck
}

// New creates a Handler.
func New(o Options) *Handler {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return &Handler{
		classifier: o.Classifier,
		rows:       o.Rows,
		tally:      o.Tally,
		issuer:     o.Issuer,
		apiURL:     o.APIURL,
		location:   o.Location,
		now:        o.Now,
		checks:     o.Checks,
	}
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("attendance_mode", func(fl validator.FieldLevel) bool {
			_, ok := attendance.ParseMode(fl.Field().String())
			return ok
		})
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Session ----------

type sessionRequest struct {
	OperatorID  string `json:"operator_id" binding:"required"`
	OperatorKey string `json:"operator_key" binding:"required"`
}

// Session exchanges an operator key for the scanner's page-load configuration.
func (h *Handler) Session(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "operator_id and operator_key are required."})
		return
	}
	nonce, err := h.issuer.Login(req.OperatorID, req.OperatorKey)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid operator credentials."})
			return
		}
		log.Printf("nonce issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not issue nonce."})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"apiUrl":    h.apiURL,
		"nonce":     nonce.Token,
		"isAdmin":   nonce.IsAdmin,
		"expiresAt": nonce.ExpiresAt.Unix(),
	})
}

// ---------- Mark attendance ----------

type markRequest struct {
	QRData string `json:"qrData" binding:"required"`
	Mode   string `json:"mode" binding:"required,attendance_mode"`
}

// MarkAttendance classifies one scanned card.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindMessage(err)})
		return
	}
	mode, _ := attendance.ParseMode(req.Mode)

	cardNo, err := attendance.ParseCardNumber(req.QRData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid QR Code format. Expecting JSON with an \"id\" key."})
		return
	}

	out, err := h.classifier.Classify(c.Request.Context(), cardNo, mode, h.now())
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Student ID not found."})
		return
	case errors.Is(err, attendance.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid mode specified."})
		return
	case err != nil:
		log.Printf("mark attendance for %s failed: %v", cardNo, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Database error: Failed to save attendance."})
		return
	}

	switch {
	case mode == attendance.ModeTeacher:
		c.JSON(http.StatusOK, gin.H{"message": "Teacher attendance recorded.", "attendanceStatus": out.Status})
	case out.AlreadyMarked:
		c.JSON(http.StatusOK, gin.H{"message": "Attendance already marked for today.", "attendanceStatus": out.Status})
	default:
		c.JSON(http.StatusCreated, gin.H{
			"message":          fmt.Sprintf("Attendance for student %s recorded.", cardNo),
			"attendanceStatus": out.Status,
		})
	}
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "attendance_mode" {
				return "Invalid mode specified."
			}
		}
		return "Missing QR data or mode."
	}
	return "Invalid request body."
}

// ---------- Reports ----------

// ListAttendance returns stored rows filtered by date and class.
func (h *Handler) ListAttendance(c *gin.Context) {
	f := attendance.ListFilter{Date: c.Query("date")}
	if f.Date != "" {
		if _, err := time.Parse("2006-01-02", f.Date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date format. Use YYYY-MM-DD"})
			return
		}
	}
	if v := c.Query("class_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "class_id must be numeric"})
			return
		}
		f.ClassID = id
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.rows.ListRows(c.Request.Context(), f)
	if err != nil {
		log.Printf("list attendance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch attendance records"})
		return
	}
	if rows == nil {
		rows = []attendance.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"attendance": rows, "count": len(rows)})
}

// Summary returns the day's On Time / Late tallies. With source=db the tally is
// recomputed from stored rows instead of the queue-fed counters.
func (h *Handler) Summary(c *gin.Context) {
	date := c.DefaultQuery("date", h.now().In(h.location).Format("2006-01-02"))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date format. Use YYYY-MM-DD"})
		return
	}

	if c.Query("source") == "db" || h.tally == nil {
		counts, err := h.rows.CountByRemark(c.Request.Context(), date)
		if err != nil {
			log.Printf("count attendance failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to count attendance"})
			return
		}
		day, err := summary.Rebuild(c.Request.Context(), date, counts)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, day)
		return
	}

	day, err := h.tally.Get(c.Request.Context(), date)
	if err != nil {
		log.Printf("read tally failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read summary"})
		return
	}
	c.JSON(http.StatusOK, day)
}
