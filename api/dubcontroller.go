package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dubbot/config"
	"dubbot/job"
	"dubbot/pipeline"
)

// JobRunner executes one dubbing job end to end.
type JobRunner interface {
	Run(ctx context.Context, j *job.Job) error
}

// RegisterDubRoutes registers the dubbing endpoints.
func RegisterDubRoutes(r *gin.Engine, cfg *config.Config, runner JobRunner) {
	ctrl := &dubController{cfg: cfg, runner: runner}
	g := r.Group("/api")
	g.POST("/dub", ctrl.handleDub)
}

type dubController struct {
	cfg    *config.Config
	runner JobRunner
}

// DubResponse is returned for both successes and failures.
type DubResponse struct {
	JobID          string             `json:"job_id,omitempty"`
	OutputLocation string             `json:"output_location,omitempty"`
	ContentDigest  string             `json:"content_digest,omitempty"`
	StageSeconds   map[string]float64 `json:"stage_seconds,omitempty"`
	Stage          string             `json:"stage,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// handleDub accepts a Template, runs the pipeline, and returns the
// output location and content digest. Template problems map to 400;
// tool, provider, and storage failures map to 502. A publish failure
// is a job failure on this surface (unlike batch mode, which keeps
// the local artifact as a success).
func (ctrl *dubController) handleDub(c *gin.Context) {
	var tpl job.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		c.JSON(http.StatusBadRequest, DubResponse{Error: "invalid template JSON: " + err.Error()})
		return
	}

	j, err := job.New(tpl, ctrl.cfg)
	if err != nil {
		if errors.Is(err, job.ErrInvalidTemplate) || errors.Is(err, job.ErrMissingField) {
			c.JSON(http.StatusBadRequest, DubResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, DubResponse{Error: err.Error()})
		return
	}

	// The pipeline runs to completion even if the client goes away,
	// so the cache still benefits from the work.
	err = ctrl.runner.Run(context.WithoutCancel(c.Request.Context()), j)
	if err != nil {
		resp := DubResponse{JobID: j.ID, Error: err.Error(), StageSeconds: stageSeconds(j)}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			resp.Stage = se.Stage
		}
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	c.JSON(http.StatusOK, DubResponse{
		JobID:          j.ID,
		OutputLocation: j.OutputPublicLocation,
		ContentDigest:  j.ContentDigest,
		StageSeconds:   stageSeconds(j),
	})
}

func stageSeconds(j *job.Job) map[string]float64 {
	out := make(map[string]float64, len(j.StageTimings))
	for name, t := range j.StageTimings {
		out[name] = t.Seconds()
	}
	return out
}
