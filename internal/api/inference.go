package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/db/repository"
	"github.com/sdstation/middleware/internal/services/artifacts"
	"github.com/sdstation/middleware/internal/services/lifecycle"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/types"
)

type runInferenceRequest struct {
	TaskType  string                 `json:"task_type"`
	Overrides map[string]interface{} `json:"overrides"`

	Plugins          []artifacts.PluginInvocation `json:"plugins"`
	VAE              string                       `json:"vae"`
	LoraTags         []string                     `json:"lora_tags"`
	HypernetworkTags []string                     `json:"hypernetwork_tags"`
	LoraFiles        []string                     `json:"lora_files"`
	Hypernetworks    map[string]string            `json:"hypernetworks"`
	EmbeddingFiles   []string                     `json:"embedding_files"`
}

// RunInferenceUI submits a job assembled from the GUI template; RunInferenceAPI
// does the same from the programmatic template. They differ only in which
// stored template seeds the payload.
func RunInferenceUI(c *gin.Context) {
	runInference(c, lifecycle.SourceUI)
}

func RunInferenceAPI(c *gin.Context) {
	runInference(c, lifecycle.SourceAPI)
}

func runInference(c *gin.Context, source string) {
	var req runInferenceRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Lifecycle.RunInference(c.Request.Context(), lifecycle.RunInferenceInput{
		TaskType:  req.TaskType,
		Source:    source,
		Overrides: req.Overrides,
		Artifacts: artifacts.Request{
			Plugins:          req.Plugins,
			VAE:              req.VAE,
			LoraTags:         req.LoraTags,
			HypernetworkTags: req.HypernetworkTags,
			LoraFiles:        req.LoraFiles,
			Hypernetworks:    req.Hypernetworks,
			EmbeddingFiles:   req.EmbeddingFiles,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "data": result})
}

func GetInferenceJob(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	job, err := app.Lifecycle.GetInferenceJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": job})
}

func ListInferenceJobs(c *gin.Context) {
	filter := repository.InferenceJobFilter{
		Status:   types.InferenceJobStatus(c.Query("status")),
		TaskType: c.Query("task_type"),
		Endpoint: c.Query("endpoint"),
	}

	for query, target := range map[string]*time.Time{
		"start_from": &filter.StartFrom,
		"start_to":   &filter.StartTo,
	} {
		raw := c.Query(query)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, query+" must be RFC 3339")
			return
		}
		*target = parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	app := c.MustGet("app").(*app.App)
	jobs, err := app.Lifecycle.ListInferenceJobs(c.Request.Context(), filter, c.Query("checkpoint"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"inferences": jobs}})
}

type finalizeInferenceRequest struct {
	Status types.InferenceJobStatus `json:"status"`
	Error  string                   `json:"error"`
	Images []string                 `json:"images"`
}

// FinalizeInference records the worker-reported outcome of a job. The write
// is first-wins; a repeat for an already settled job gets a conflict.
func FinalizeInference(c *gin.Context) {
	var req finalizeInferenceRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	err := app.Lifecycle.FinalizeInference(c.Request.Context(), c.Param("id"), req.Status, req.Error, req.Images)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func GetInferenceImages(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	urls, err := app.Lifecycle.OutputImageURLs(c.Request.Context(), c.Param("id"), objectstore.DefaultPresignTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"images": urls}})
}

func GetInferenceParams(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	url, err := app.Lifecycle.OutputParamsURL(c.Request.Context(), c.Param("id"), objectstore.DefaultPresignTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"params_url": url}})
}
