package devserver

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/minutes-go/internal/client"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// registerRoutes sets up all service routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.POST("/login", s.handleLogin)
	router.POST("/register", s.handleRegister)

	api := router.Group("/", s.requireAuth)
	api.POST("/upload", s.handleUpload)
	api.POST("/transcribe", s.handleTranscribe)
	api.GET("/progress/:id", s.handleTranscriptionProgress)

	api.GET("/transcripts/:id", s.handleGetTranscript)
	api.PUT("/transcripts/:id", s.handleUpdateTranscript)
	api.DELETE("/transcripts/:id", s.handleDeleteTranscript)

	api.POST("/generate-report", s.handleGenerateReport)
	api.GET("/reports", s.handleListReports)
	api.GET("/reports/:id", s.handleGetReport)
	api.GET("/reports/:id/progress", s.handleReportProgress)
	api.DELETE("/reports/:id", s.handleDeleteReport)

	api.GET("/statistics", s.handleStatistics)
	api.GET("/statistics/users/:period", s.handleUserStatistics)
}

// fail aborts with the service's {detail} error shape.
func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ===== SESSION =====

func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	login := body.Email
	if login == "" {
		login = body.Username
	}
	login = strings.ToLower(strings.TrimSpace(login))

	s.mu.Lock()
	defer s.mu.Unlock()
	var found *user
	for _, u := range s.users {
		if strings.EqualFold(u.Email, login) || u.Username == login {
			found = u
			break
		}
	}
	// Passwords are kept in plain text; this server never leaves a dev machine.
	if found == nil || found.Password != body.Password {
		fail(c, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	found.LastLogin = s.now()
	token := newID()
	s.tokens[token] = found.Username
	c.JSON(http.StatusOK, client.LoginResponse{
		AccessToken:  token,
		RefreshToken: newID(),
		TokenType:    "bearer",
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	var in client.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := s.register(in)
	switch {
	case errors.Is(err, errUsernameTaken), errors.Is(err, errEmailTaken):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c.JSON(http.StatusOK, client.RegisterResponse{Message: "User registered successfully", Username: u.Username})
}

// ===== AUDIO & TRANSCRIPTION =====

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "No file uploaded")
		return
	}
	a := &audio{ID: newID(), Name: fh.Filename, Size: fh.Size, Owner: currentUser(c)}

	s.mu.Lock()
	s.audio[a.ID] = a
	s.mu.Unlock()

	c.JSON(http.StatusOK, client.UploadResponse{FileID: a.ID})
}

func (s *Server) handleTranscribe(c *gin.Context) {
	var in client.TranscribeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.audio[in.FileID]
	if a == nil || a.Owner != currentUser(c) {
		fail(c, http.StatusNotFound, "Audio file not found")
		return
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = a.Name
	}
	j := &job{
		ID:        newID(),
		Title:     title,
		Owner:     a.Owner,
		Status:    "pending",
		Source:    a.Name,
		Text:      transcriptText(a.Name, in),
		CreatedAt: s.now(),
	}
	s.transcriptions[j.ID] = j
	c.JSON(http.StatusOK, client.TranscribeResponse{RequestID: j.ID})
}

func (s *Server) handleTranscriptionProgress(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.transcriptions)
	if j == nil {
		fail(c, http.StatusNotFound, "Request ID not found")
		return
	}
	s.advance(j, "transcribing")
	c.JSON(http.StatusOK, client.Progress{Status: j.Status, Progress: float64(j.Progress), Message: j.Message})
}

// ===== TRANSCRIPTS =====

func (s *Server) handleGetTranscript(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.transcriptions)
	if j == nil || j.Status != "completed" {
		fail(c, http.StatusNotFound, "Transcript not found")
		return
	}
	c.JSON(http.StatusOK, client.Transcript{ID: j.ID, Title: j.Title, Text: j.Text})
}

func (s *Server) handleUpdateTranscript(c *gin.Context) {
	var body struct {
		Text *string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == nil {
		fail(c, http.StatusUnprocessableEntity, "text is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.transcriptions)
	if j == nil {
		fail(c, http.StatusNotFound, "Transcript not found")
		return
	}
	j.Text = *body.Text
	c.JSON(http.StatusOK, gin.H{"message": "Transcript updated"})
}

func (s *Server) handleDeleteTranscript(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.transcriptions)
	if j == nil {
		fail(c, http.StatusNotFound, "Transcript not found")
		return
	}
	delete(s.transcriptions, j.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Transcript deleted"})
}

// ===== REPORTS =====

func (s *Server) handleGenerateReport(c *gin.Context) {
	var in client.GenerateReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(in.Prompt) == "" {
		fail(c, http.StatusBadRequest, "Prompt is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.transcriptions[in.TranscriptID]
	if t == nil || t.Owner != currentUser(c) {
		fail(c, http.StatusNotFound, "Transcript not found")
		return
	}
	if t.Status != "completed" {
		fail(c, http.StatusBadRequest, "Transcript is not ready")
		return
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Laporan " + t.Title
	}
	j := &job{
		ID:        newID(),
		Title:     title,
		Owner:     t.Owner,
		Status:    "pending",
		Source:    t.ID,
		Prompt:    in.Prompt,
		Text:      t.Text,
		CreatedAt: s.now(),
	}
	s.reports[j.ID] = j
	c.JSON(http.StatusOK, client.GenerateReportResponse{ReportID: j.ID})
}

func (s *Server) handleReportProgress(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.reports)
	if j == nil {
		fail(c, http.StatusNotFound, "Report not found")
		return
	}
	s.advance(j, "processing")
	c.JSON(http.StatusOK, client.Progress{Status: j.Status, Progress: float64(j.Progress), Message: j.Message})
}

func (s *Server) handleGetReport(c *gin.Context) {
	s.mu.Lock()
	j := s.ownedJob(c, s.reports)
	var snapshot job
	if j != nil {
		snapshot = *j
	}
	s.mu.Unlock()

	if j == nil {
		fail(c, http.StatusNotFound, "Report not found")
		return
	}
	if snapshot.Status != "completed" {
		fail(c, http.StatusBadRequest, "Report is not ready")
		return
	}
	data, err := renderDocx(snapshot.Title, snapshot.Prompt, snapshot.Text)
	if err != nil {
		s.logger.Error("render report", "report_id", snapshot.ID, "error", err)
		fail(c, http.StatusInternalServerError, "Failed to render report")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(snapshot.Title, `"`, "")+`.docx"`)
	c.Data(http.StatusOK, docxContentType, data)
}

func (s *Server) handleListReports(c *gin.Context) {
	s.mu.Lock()
	owner := currentUser(c)
	list := make([]client.ReportSummary, 0, len(s.reports))
	for _, j := range s.reports {
		if j.Owner != owner {
			continue
		}
		list = append(list, client.ReportSummary{
			ID:        j.ID,
			Title:     j.Title,
			Status:    j.Status,
			Progress:  float64(j.Progress),
			CreatedAt: j.CreatedAt,
		})
	}
	s.mu.Unlock()

	slices.SortFunc(list, func(a, b client.ReportSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"reports": list})
}

func (s *Server) handleDeleteReport(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.ownedJob(c, s.reports)
	if j == nil {
		fail(c, http.StatusNotFound, "Report not found")
		return
	}
	delete(s.reports, j.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}

// ===== STATISTICS =====

func (s *Server) handleStatistics(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, client.Statistics{
		TotalUsers:       len(s.users),
		TotalAudioFiles:  len(s.audio),
		TotalTranscripts: len(s.transcriptions),
		TotalReports:     len(s.reports),
	})
}

func (s *Server) handleUserStatistics(c *gin.Context) {
	var window time.Duration
	switch c.Param("period") {
	case "all":
	case "week":
		window = 7 * 24 * time.Hour
	case "month":
		window = 30 * 24 * time.Hour
	default:
		fail(c, http.StatusBadRequest, "Invalid period. Must be one of: all, week, month")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	users := make([]client.UserActivity, 0, len(s.users))
	for _, u := range s.users {
		if window > 0 && now.Sub(u.CreatedAt) > window {
			continue
		}
		lastLogin := "Never"
		if !u.LastLogin.IsZero() {
			lastLogin = u.LastLogin.Format(time.RFC3339)
		}
		users = append(users, client.UserActivity{
			Username:  u.Username,
			Email:     u.Email,
			FullName:  u.FullName,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
			LastLogin: lastLogin,
		})
	}
	slices.SortFunc(users, func(a, b client.UserActivity) int {
		return strings.Compare(a.Username, b.Username)
	})
	c.JSON(http.StatusOK, client.UserStatistics{UserCount: len(users), Users: users})
}

// ownedJob returns the job named by the :id param if the caller owns it.
// Callers must hold mu.
func (s *Server) ownedJob(c *gin.Context, jobs map[string]*job) *job {
	j := jobs[c.Param("id")]
	if j == nil || j.Owner != currentUser(c) {
		return nil
	}
	return j
}

func transcriptText(name string, in client.TranscribeInput) string {
	return "Transkrip rakaman " + name + " (model " + in.ModelName + ", bahasa " + in.Language + ").\n" +
		"Pengerusi membuka mesyuarat dan mengalu-alukan kehadiran semua ahli.\n" +
		"Ahli mesyuarat bersetuju untuk meneruskan agenda seperti yang dirancang."
}
