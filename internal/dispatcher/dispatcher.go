// Package dispatcher is the front door of spec.md §4.3: a gin HTTP service
// accepting submissions, answering result lookups, and recording cancel
// requests, grounded on the teacher's routes/route.go handler shape (gin
// binding + logrus request logging) and on the original optimus-api's
// handlers.rs for the wire contract itself.
package dispatcher

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"optimus/internal/httpresp"
	"optimus/internal/job"
	"optimus/internal/langconfig"
	"optimus/internal/oerr"
	"optimus/internal/sanitize"
	"optimus/internal/store"
)

// Store is the subset of internal/store.Store the Dispatcher needs.
type Store interface {
	SubmitJob(ctx context.Context, j *job.Job, ttl time.Duration) error
	GetResult(ctx context.Context, id string) (*job.JobResult, error)
	GetState(ctx context.Context, id string) (job.State, error)
	Exists(ctx context.Context, id string) (bool, error)
	RequestCancel(ctx context.Context, id string, ttl time.Duration) error
}

// Dispatcher wires the Result Store and the per-language policy registry
// behind gin's router, enforcing spec.md §4.3's validation and status
// mapping.
type Dispatcher struct {
	Store     Store
	Policies  *langconfig.Manager
	Logger    *logrus.Logger
	ResultTTL time.Duration

	TimeoutMSDefault int64
	TimeoutMSMax     int64
	SourceSizeCap    int64

	Ratelimit      int
	RatelimitBurst int

	// LLMCheck is optional; nil disables the advisory pass entirely.
	LLMCheck *sanitize.LLMChecker
}

// submitRequest mirrors the original optimus-api's SubmitRequest, per
// spec.md §6's wire shapes: language, base64 source, ordered test cases, and
// an optional timeout override.
type submitRequest struct {
	Language     string              `json:"language" binding:"required"`
	SourceCode   string              `json:"source_code" binding:"required"`
	TestCases    []testCaseInput     `json:"test_cases" binding:"required"`
	TimeoutMS    int64               `json:"timeout_ms"`
}

type testCaseInput struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	Weight         *uint32 `json:"weight"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Router builds the gin engine with every route of spec.md §4.3, including
// the path aliases spec.md names.
func (d *Dispatcher) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(d.requestLogger())

	limiter := newRateLimiter(d.Ratelimit, d.RatelimitBurst)

	r.GET("/health", d.handleHealth)

	submit := r.Group("/")
	submit.Use(limiter.middleware())
	submit.POST("/execute", d.handleSubmit)
	submit.POST("/jobs", d.handleSubmit)

	r.GET("/job/:id", d.handleGet)
	r.GET("/jobs/:id", d.handleGet)
	r.DELETE("/jobs/:id", d.handleCancel)

	return r
}

func (d *Dispatcher) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d.Logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}

func (d *Dispatcher) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleSubmit implements spec.md §4.3's submission contract: validate,
// allocate a uuid job id, push to the Result Store, respond 201.
func (d *Dispatcher) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, "malformed request: "+err.Error())
		return
	}

	lang := job.Language(req.Language)
	if _, ok := d.Policies.Get(lang); !ok {
		httpresp.ErrorWithCode(c, oerr.UnknownLanguage, "unsupported language: "+req.Language)
		return
	}

	if len(req.TestCases) == 0 {
		httpresp.BadRequest(c, "test_cases must not be empty")
		return
	}

	source, err := base64.StdEncoding.DecodeString(req.SourceCode)
	if err != nil {
		httpresp.BadRequest(c, "source_code must be base64-encoded")
		return
	}
	if d.SourceSizeCap > 0 && int64(len(source)) > d.SourceSizeCap {
		httpresp.BadRequest(c, "source_code exceeds the size cap")
		return
	}
	if err := sanitize.Check(lang, source, int(d.SourceSizeCap)); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = d.TimeoutMSDefault
	}
	if d.TimeoutMSMax > 0 && timeoutMS > d.TimeoutMSMax {
		httpresp.BadRequest(c, "timeout_ms exceeds the maximum allowed")
		return
	}

	cases := make([]job.TestCase, 0, len(req.TestCases))
	for i, tc := range req.TestCases {
		weight := uint32(10)
		if tc.Weight != nil {
			weight = *tc.Weight
		}
		cases = append(cases, job.TestCase{
			ID:             uint32(i + 1),
			Input:          []byte(tc.Input),
			ExpectedOutput: []byte(tc.ExpectedOutput),
			Weight:         weight,
		})
	}

	j := &job.Job{
		ID:        uuid.NewString(),
		Language:  lang,
		Source:    source,
		TestCases: cases,
		TimeoutMS: timeoutMS,
	}

	if err := d.Store.SubmitJob(c.Request.Context(), j, d.ResultTTL); err != nil {
		d.Logger.WithError(err).Error("submit failed")
		httpresp.Error(c, err)
		return
	}

	d.Logger.WithFields(logrus.Fields{"job_id": j.ID, "language": lang, "test_count": len(cases)}).Info("job submitted")

	if d.LLMCheck != nil {
		go func(jobID, langStr string, src []byte) {
			note, err := d.LLMCheck.Advise(context.Background(), langStr, src)
			if err != nil {
				d.Logger.WithField("job_id", jobID).WithError(err).Debug("llm advisory call failed")
				return
			}
			if note != "" {
				d.Logger.WithFields(logrus.Fields{"job_id": jobID, "advisory": note}).Warn("llm sanity check flagged submission")
			}
		}(j.ID, req.Language, source)
	}

	c.JSON(http.StatusCreated, submitResponse{JobID: j.ID})
}

// handleGet implements spec.md §4.3's lookup contract: 200+result, 202 with
// {"status":"pending"} while pending, 404 for an id that was never submitted.
func (d *Dispatcher) handleGet(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		httpresp.BadRequest(c, "malformed job id")
		return
	}

	result, err := d.Store.GetResult(c.Request.Context(), id)
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}
	if err != store.ErrNotFound {
		httpresp.Error(c, err)
		return
	}

	exists, err := d.Store.Exists(c.Request.Context(), id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	if !exists {
		httpresp.NotFound(c, "no job with that id")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
}

// handleCancel implements spec.md §4.3's cancel contract: record the cancel
// flag and return 200; the engine observes it cooperatively at its next
// checkpoint.
func (d *Dispatcher) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		httpresp.BadRequest(c, "malformed job id")
		return
	}

	exists, err := d.Store.Exists(c.Request.Context(), id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	if !exists {
		httpresp.NotFound(c, "no job with that id")
		return
	}

	if err := d.Store.RequestCancel(c.Request.Context(), id, d.ResultTTL); err != nil {
		httpresp.Error(c, err)
		return
	}
	c.Status(http.StatusOK)
}
