package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/invoice_backend/middlewares"
	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/uploads"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"bitbucket.org/mmdatafocus/invoice_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type api struct {
	engine  *workflow.Engine
	objects uploads.ObjectStore
	logger  *logrus.Logger
}

type transitionRequest struct {
	Status models.InvoiceStatus `json:"status" binding:"required"`
	Note   string               `json:"note"`
}

type reassignRequest struct {
	AssigneeId int    `json:"assignee_id" binding:"required"`
	Note       string `json:"note"`
}

type documentRequest struct {
	Kind models.DocumentKind `json:"kind" binding:"required"`
	Ref  string              `json:"ref"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// routes registers the workflow endpoints on r. Everything except /login and
// /healthz needs a bearer token.
func (a *api) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/login", a.login)

	auth := r.Group("/", middlewares.AuthMiddleware())
	auth.POST("/invoices", a.createInvoice)
	auth.GET("/invoices/:id", a.getInvoice)
	auth.PATCH("/invoices/:id", a.updateInvoice)
	auth.DELETE("/invoices/:id", a.deleteInvoice)
	auth.POST("/invoices/:id/transitions", a.applyTransition)
	auth.POST("/invoices/:id/reassign", a.reassign)
	auth.POST("/invoices/:id/documents", a.uploadDocument)
	auth.GET("/invoices/:id/progress", a.progress)
	auth.GET("/invoices/:id/history", a.history)
	auth.GET("/assignee", a.selectAssignee)
	auth.POST("/suppliers", a.registerSupplier)
	auth.POST("/users", a.registerUser)
	auth.PATCH("/users/:id/active", a.setUserActive)
}

func actorID(c *gin.Context) int {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	return id
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return false
	}
	return true
}

// writeError maps workflow outcomes to HTTP statuses. Anything unexpected is
// recorded on the context for the error logger and hidden from the client.
func (a *api) writeError(c *gin.Context, err error) {
	var invalid *workflow.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error":   invalid.Error(),
			"from":    invalid.From,
			"to":      invalid.To,
			"allowed": invalid.Allowed,
			"reason":  invalid.Reason,
		})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInvalidTransition),
		errors.Is(err, utils.ErrorDuplicateNumber),
		errors.Is(err, utils.ErrorDuplicateTaxId):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInvalidAmount), errors.Is(err, utils.ErrorInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, store.ErrLockNotObtained):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "invoice is busy, try again"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	info, err := a.engine.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (a *api) createInvoice(c *gin.Context) {
	var input models.NewInvoice
	if !bind(c, &input) {
		return
	}
	input.CreatedIP = c.ClientIP()
	inv, err := a.engine.CreateInvoice(c.Request.Context(), actorID(c), input)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (a *api) getInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inv, err := a.engine.GetInvoice(c.Request.Context(), id, actorID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (a *api) updateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input models.UpdateInvoice
	if !bind(c, &input) {
		return
	}
	inv, err := a.engine.UpdateInvoice(c.Request.Context(), id, actorID(c), input)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (a *api) deleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.engine.DeleteInvoice(c.Request.Context(), id, actorID(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) applyTransition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if !bind(c, &req) {
		return
	}
	inv, err := a.engine.ApplyTransition(c.Request.Context(), id, req.Status, actorID(c), req.Note)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (a *api) reassign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reassignRequest
	if !bind(c, &req) {
		return
	}
	inv, err := a.engine.Reassign(c.Request.Context(), id, req.AssigneeId, actorID(c), req.Note)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

// uploadDocument accepts either a multipart file (field "file", plus "kind")
// which is stored before it is recorded, or JSON {kind, ref} for an already
// stored object or an access code.
func (a *api) uploadDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req documentRequest
		if !bind(c, &req) {
			return
		}
		inv, err := a.engine.RecordDocumentUpload(ctx, id, req.Kind, req.Ref, actorID(c))
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": inv})
		return
	}

	kind := models.DocumentKind(c.PostForm("kind"))
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, uploads.MaxUploadSizeBytes+1))
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}

	doc, err := uploads.PrepareDocument(id, kind, data)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.objects.Upload(ctx, doc.ObjectKey, doc.Data, doc.ContentType); err != nil {
		a.writeError(c, err)
		return
	}
	inv, err := a.engine.RecordDocumentUpload(ctx, id, kind, doc.ObjectKey, actorID(c))
	if err != nil {
		if rmErr := a.objects.RemoveFiles(ctx, []string{doc.ObjectKey}); rmErr != nil {
			a.logger.WithFields(logrus.Fields{
				"field":      "uploadDocument",
				"invoice_id": id,
				"object_key": doc.ObjectKey,
			}).Error("remove orphaned upload: " + rmErr.Error())
		}
		a.writeError(c, err)
		return
	}
	a.logger.WithFields(logrus.Fields{
		"field":      "uploadDocument",
		"invoice_id": id,
		"kind":       kind,
		"object_key": doc.ObjectKey,
		"size":       len(doc.Data),
	}).Info("document stored")
	c.JSON(http.StatusOK, gin.H{"data": inv, "object_key": doc.ObjectKey})
}

func (a *api) progress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := a.engine.GetInvoice(ctx, id, actorID(c)); err != nil {
		a.writeError(c, err)
		return
	}
	p, err := a.engine.ComputeProgress(ctx, id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (a *api) history(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := a.engine.History(c.Request.Context(), id, actorID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (a *api) selectAssignee(c *gin.Context) {
	id, err := a.engine.SuggestAssignee(c.Request.Context(), actorID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"assignee_id": id}})
}

func (a *api) registerSupplier(c *gin.Context) {
	var input models.NewSupplier
	if !bind(c, &input) {
		return
	}
	s, err := a.engine.RegisterSupplier(c.Request.Context(), actorID(c), input)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": s})
}

func (a *api) registerUser(c *gin.Context) {
	var input models.NewUser
	if !bind(c, &input) {
		return
	}
	u, err := a.engine.RegisterUser(c.Request.Context(), actorID(c), input)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": u})
}

func (a *api) setUserActive(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req activeRequest
	if !bind(c, &req) {
		return
	}
	if err := a.engine.SetUserActive(c.Request.Context(), actorID(c), id, *req.Active); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
