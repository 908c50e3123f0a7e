package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"detectorgo/internal/auth"
	"detectorgo/internal/config"
	"detectorgo/internal/document"
	"detectorgo/internal/identity"
	"detectorgo/internal/models"
	"detectorgo/internal/service/detector"
)

// multipart headers and boundaries on top of the file itself
const multipartOverhead = 1 << 20

// Handler wires HTTP routes to the detector service.
type Handler struct {
	detector       *detector.Service
	gate           *auth.Gate
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(service *detector.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = config.DefaultUploadBytes
	}
	return &Handler{
		detector:       service,
		gate:           auth.NewGate(service),
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)
	router.POST("/signup", h.signUp)
	router.POST("/signin", h.signIn)
	router.POST("/signout", auth.RequireToken(), h.signOut)

	authMW := h.gate.Middleware()
	user := router.Group("")
	user.Use(authMW)
	user.GET("/users/me", h.currentUser)
	user.POST("/predict", h.predict)
	user.POST("/predict-pdf", h.predictPDF)
	user.GET("/predictions/me", h.myPredictions)
	user.POST("/submit-feedback", h.submitFeedback)

	admin := router.Group("")
	admin.Use(authMW, auth.RequireAdmin())
	admin.GET("/admin/users", h.listUsers)
	admin.GET("/admin/predictions", h.listPredictions)
	admin.GET("/feedback-count", h.feedbackCount)
	admin.GET("/prediction-count", h.predictionCount)
	admin.GET("/prediction-accuracy", h.predictionAccuracy)
	admin.GET("/prediction-history", h.predictionHistory)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) currentUserOrAbort(c *gin.Context) (*models.User, bool) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	return user, true
}

// Account

type signUpRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=6"`
	Username *string `json:"username"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	err := h.detector.Register(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		case errors.Is(err, detector.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		case errors.Is(err, detector.ErrProfileCreate):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully. Please sign in."})
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, role, err := h.detector.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid login credentials"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"role":         role,
	})
}

func (h *Handler) signOut(c *gin.Context) {
	token, _ := auth.AuthTokenFromContext(c)
	if err := h.detector.SignOut(c.Request.Context(), token); err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sign out failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

func (h *Handler) currentUser(c *gin.Context) {
	user, ok := h.currentUserOrAbort(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// Predictions

type predictRequest struct {
	InputText string `json:"input_text"`
}

func (h *Handler) predict(c *gin.Context) {
	user, ok := h.currentUserOrAbort(c)
	if !ok {
		return
	}
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.detector.Predict(c.Request.Context(), user.ID, req.InputText)
	if err != nil {
		h.writePredictError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) predictPDF(c *gin.Context) {
	user, ok := h.currentUserOrAbort(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	result, err := h.detector.PredictDocument(c.Request.Context(), user.ID, filepath.Base(file.Filename), data)
	if err != nil {
		h.writePredictError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) writePredictError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, detector.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "input text is empty"})
	case errors.Is(err, document.ErrNotPDF), errors.Is(err, document.ErrNoText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) myPredictions(c *gin.Context) {
	user, ok := h.currentUserOrAbort(c)
	if !ok {
		return
	}
	preds, err := h.detector.ListUserPredictions(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preds)
}

type feedbackRequest struct {
	PredictionID string  `json:"prediction_id" binding:"required,uuid"`
	IsCorrect    *bool   `json:"is_correct" binding:"required"`
	Comment      *string `json:"comment"`
}

func (h *Handler) submitFeedback(c *gin.Context) {
	user, ok := h.currentUserOrAbort(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	fb, err := h.detector.SubmitFeedback(c.Request.Context(), user.ID, req.PredictionID, *req.IsCorrect, req.Comment)
	if err != nil {
		if errors.Is(err, detector.ErrPredictionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Prediction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, fb)
}

// Admin

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.detector.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) listPredictions(c *gin.Context) {
	preds, err := h.detector.ListPredictions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preds)
}

func (h *Handler) feedbackCount(c *gin.Context) {
	n, err := h.detector.FeedbackCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) predictionCount(c *gin.Context) {
	n, err := h.detector.PredictionCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) predictionAccuracy(c *gin.Context) {
	acc, err := h.detector.Accuracy(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accuracy": acc})
}

func (h *Handler) predictionHistory(c *gin.Context) {
	history, err := h.detector.History(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, history)
}
