package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/database"
	apperrors "github.com/ZanzyTHEbar/corrosion-rating/internal/errors"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// evaluateRequest evaluates datapoints against either a stored norm or a norm
// sent inline. Inline parameters override the stored catalogue.
type evaluateRequest struct {
	NormID     string             `json:"normId"`
	Norm       *rating.Norm       `json:"norm"`
	Parameters []rating.Parameter `json:"parameters"`
	Datapoints []rating.Datapoint `json:"datapoints"`
}

type evaluateResponse struct {
	NormID  string          `json:"normId"`
	Status  rating.Status   `json:"status"`
	Message string          `json:"message,omitempty"`
	Results []rating.Result `json:"results"`
	Summary rating.Summary  `json:"summary"`
}

type validateValueRequest struct {
	Value string `json:"value"`
}

func (s *server) fail(c *gin.Context, err error) {
	var ce *rating.ConfigError
	if errors.As(err, &ce) {
		s.logger.ConfigurationLogger(ce.Subject, err)
	}
	_ = c.Error(err)
	c.Abort()
}

func (s *server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return false
	}
	return true
}

func countByStatus(results []rating.Result) map[string]int {
	out := map[string]int{}
	for _, r := range results {
		out[string(r.Status)]++
	}
	return out
}

func (s *server) handleEvaluate(c *gin.Context) {
	start := time.Now()
	var req evaluateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Norm == nil && req.NormID == "" {
		s.fail(c, apperrors.NewValidationError("Either norm or normId is required"))
		return
	}
	if len(req.Datapoints) == 0 {
		s.fail(c, apperrors.NewValidationError("At least one datapoint is required"))
		return
	}

	ctx := c.Request.Context()
	norm, err := s.resolveNorm(c, req)
	if err != nil {
		s.fail(c, err)
		return
	}

	for i := range req.Datapoints {
		dp := &req.Datapoints[i]
		if dp.ID == "" {
			dp.ID = uuid.NewString()
		}
		if dp.SequentialID == 0 {
			dp.SequentialID = i + 1
		}
		dp.NormID = norm.ID
	}

	results, err := s.service.Engine().EvaluateDatapoints(ctx, req.Datapoints, norm)
	resp := evaluateResponse{NormID: norm.ID, Status: rating.StatusOK}
	switch {
	case err == nil:
	case rating.IsNotConfigured(err):
		resp.Status = rating.StatusNotConfigured
		resp.Message = err.Error()
	default:
		s.fail(c, err)
		return
	}

	resp.Results = results
	resp.Summary = rating.Summarize(results)

	s.metrics.ObserveResults(results)
	s.logger.EvaluationLogger(norm.ID, len(results), countByStatus(results), time.Since(start), false)

	c.JSON(http.StatusOK, resp)
}

func (s *server) resolveNorm(c *gin.Context, req evaluateRequest) (rating.Norm, error) {
	ctx := c.Request.Context()
	repo := s.service.Repository()

	if req.Norm == nil {
		stored, err := repo.GetNorm(ctx, req.NormID)
		if err != nil {
			return rating.Norm{}, err
		}
		return *stored, nil
	}

	catalog, err := repo.Catalog(ctx)
	if err != nil {
		return rating.Norm{}, err
	}
	for _, p := range req.Parameters {
		if err := p.Validate(); err != nil {
			return rating.Norm{}, err
		}
		catalog[p.ID] = p
	}

	norm := req.Norm.WithCatalog(catalog)
	if norm.ID == "" {
		norm.ID = "adhoc"
	}
	if err := norm.Validate(); err != nil {
		return rating.Norm{}, err
	}
	return norm, nil
}

func (s *server) handleClasses(c *gin.Context) {
	engine := s.service.Engine()
	raw := c.Query("score")
	if raw == "" {
		c.JSON(http.StatusOK, gin.H{"classes": engine.Bands()})
		return
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.fail(c, apperrors.NewValidationError("score must be a number", raw))
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score, "classification": engine.Classify(score)})
}

func (s *server) handleListParameters(c *gin.Context) {
	params, err := s.service.Repository().ListParameters(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parameters": params})
}

func (s *server) handleGetParameter(c *gin.Context) {
	p, err := s.service.Repository().GetParameter(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) handlePutParameter(c *gin.Context) {
	var p rating.Parameter
	if !s.bindJSON(c, &p) {
		return
	}
	id := c.Param("id")
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		s.fail(c, apperrors.NewValidationError("Parameter id does not match the path", p.ID))
		return
	}

	ctx := c.Request.Context()
	if err := s.service.SaveParameter(ctx, p); err != nil {
		s.fail(c, err)
		return
	}
	s.cache.Invalidate(ctx)

	stored, err := s.service.Repository().GetParameter(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *server) handleValidateValue(c *gin.Context) {
	var req validateValueRequest
	if !s.bindJSON(c, &req) {
		return
	}
	err := s.service.ValidateValue(c.Request.Context(), c.Param("id"), req.Value)
	var inputErr *rating.InputError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case errors.As(err, &inputErr):
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": inputErr.Reason})
	default:
		s.fail(c, err)
	}
}

func (s *server) handleListNorms(c *gin.Context) {
	norms, err := s.service.Repository().ListNorms(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"norms": norms})
}

func (s *server) handleGetNorm(c *gin.Context) {
	n, err := s.service.Repository().GetNorm(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *server) handlePutNorm(c *gin.Context) {
	var n rating.Norm
	if !s.bindJSON(c, &n) {
		return
	}
	id := c.Param("id")
	if n.ID == "" {
		n.ID = id
	}
	if n.ID != id {
		s.fail(c, apperrors.NewValidationError("Norm id does not match the path", n.ID))
		return
	}

	ctx := c.Request.Context()
	if err := s.service.SaveNorm(ctx, n); err != nil {
		s.fail(c, err)
		return
	}
	s.cache.Invalidate(ctx)

	stored, err := s.service.Repository().GetNorm(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := gin.H{"norm": stored}
	if unknown := stored.UnknownReferences(); len(unknown) > 0 {
		resp["unknownReferences"] = unknown
	}
	if err := stored.CheckConfigured(); err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleDeleteNorm(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.service.DeleteNorm(ctx, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.cache.Invalidate(ctx)
	c.Status(http.StatusNoContent)
}

func (s *server) handleListDatapoints(c *gin.Context) {
	ctx := c.Request.Context()
	normID := c.Param("id")
	if _, err := s.service.Repository().GetNorm(ctx, normID); err != nil {
		s.fail(c, err)
		return
	}
	dps, err := s.service.Repository().ListDatapoints(ctx, normID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"datapoints": dps})
}

func (s *server) handleCreateDatapoint(c *gin.Context) {
	var in database.DatapointInput
	if !s.bindJSON(c, &in) {
		return
	}
	res, err := s.service.CreateDatapoint(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.ObserveResults([]rating.Result{*res})
	c.JSON(http.StatusCreated, res)
}

func (s *server) handleGetDatapoint(c *gin.Context) {
	dp, err := s.service.Repository().GetDatapoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dp)
}

func (s *server) handleUpdateDatapoint(c *gin.Context) {
	var in database.DatapointInput
	if !s.bindJSON(c, &in) {
		return
	}
	res, err := s.service.UpdateDatapoint(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.ObserveResults([]rating.Result{*res})
	c.JSON(http.StatusOK, res)
}

func (s *server) handleDeleteDatapoint(c *gin.Context) {
	if err := s.service.DeleteDatapoint(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) handleAnalysis(c *gin.Context) {
	start := time.Now()
	analysis, err := s.service.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.ObserveResults(analysis.Results)
	s.logger.EvaluationLogger(analysis.NormID, len(analysis.Results), countByStatus(analysis.Results), time.Since(start), false)
	c.JSON(http.StatusOK, analysis)
}

func (s *server) handleRecompute(c *gin.Context) {
	changed, err := s.service.RecomputeNorm(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"normId": c.Param("id"), "updated": changed})
}
