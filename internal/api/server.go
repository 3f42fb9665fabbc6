package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sams/internal/auth"
	"sams/internal/validate"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

const maxBodyBytes = 1 << 20

// Registry exposes live connection counts for the health report
type Registry interface {
	GetStats() map[string]int
}

// Hub exposes notification topic statistics for the health report
type Hub interface {
	GetStats() map[string]interface{}
}

// Dependencies groups everything the HTTP layer delegates to
type Dependencies struct {
	Sessions       interfaces.SessionManager
	CheckIns       interfaces.CheckInProcessor
	Courses        interfaces.CourseManager
	Database       interfaces.DatabaseManager
	Registry       Registry
	Hub            Hub
	Tokens         *auth.TokenManager
	WebSocket      http.Handler
	RequestTimeout time.Duration
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Dependencies
	router  *http.ServeMux
	started time.Time
}

// NewServer wires every route; deps.WebSocket may be nil to disable /ws
func NewServer(deps Dependencies) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	s := &Server{
		deps:    deps,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: The role check is the outermost wrapper, so no
// handler runs for a caller with the wrong role claim
func (s *Server) setupRoutes() {
	lecturer := func(h http.HandlerFunc) http.Handler {
		return s.api(s.deps.Tokens.Authenticate(s.WriteError, h, types.RoleLecturer))
	}
	student := func(h http.HandlerFunc) http.Handler {
		return s.api(s.deps.Tokens.Authenticate(s.WriteError, h, types.RoleStudent))
	}
	anyone := func(h http.HandlerFunc) http.Handler {
		return s.api(s.deps.Tokens.Authenticate(s.WriteError, h))
	}

	s.router.Handle("POST /api/session/create", lecturer(s.createSession))
	s.router.Handle("GET /api/session/active", lecturer(s.getActiveSession))
	s.router.Handle("POST /api/session/end/{sessionId}", lecturer(s.endSession))
	s.router.Handle("GET /api/session/checked-in-students/{sessionCode}", anyone(s.listCheckedIn))
	s.router.Handle("GET /api/session/courses", lecturer(s.listCourses))
	s.router.Handle("GET /api/session/lecture-halls", anyone(s.listLectureHalls))
	s.router.Handle("GET /api/session/course-times/{courseId}", lecturer(s.todayCourseTime))
	s.router.Handle("POST /api/attendance/check-in", student(s.checkIn))
	s.router.Handle("POST /api/manage-courses/courses", lecturer(s.createCourse))
	s.router.Handle("PUT /api/manage-courses/courses/{id}", lecturer(s.updateCourse))
	s.router.Handle("OPTIONS /api/", s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	s.router.Handle("GET /health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))

	if s.deps.WebSocket != nil {
		s.router.Handle("GET /ws", s.deps.WebSocket)
	}
}

// api applies the JSON, CORS and request-timeout middleware
func (s *Server) api(next http.Handler) http.Handler {
	return s.corsMiddleware(s.jsonMiddleware(s.timeoutMiddleware(next)))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(requestID); err != nil {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CheckInRequest struct {
	SessionCode string `json:"sessionCode" validate:"required,max=64"`
}

type CreateSessionResponse struct {
	SessionID      int64     `json:"sessionId"`
	SessionCode    string    `json:"sessionCode"`
	CreationTime   time.Time `json:"creationTime"`
	ExpirationTime time.Time `json:"expirationTime"`
	LectureStart   time.Time `json:"lectureStartTime"`
	LectureEnd     time.Time `json:"lectureEndTime"`
}

type EndSessionResponse struct {
	Message   string `json:"message"`
	SessionID int64  `json:"sessionId"`
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Database      string                 `json:"database"`
	Connections   map[string]int         `json:"connections"`
	Notifications map[string]interface{} `json:"notifications"`
	System        map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (s *Server) caller(r *http.Request) *auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

// POST /api/session/create
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req interfaces.SessionCreation
	if err := decodeAndValidate(r, &req); err != nil {
		s.WriteError(w, r, err)
		return
	}

	session, err := s.deps.Sessions.CreateSession(r.Context(), s.caller(r).UserID, req)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:      session.ID,
		SessionCode:    session.Code,
		CreationTime:   session.CreationTime,
		ExpirationTime: session.ExpirationTime,
		LectureStart:   session.LectureStartTime,
		LectureEnd:     session.LectureEndTime,
	})
}

// GET /api/session/active
func (s *Server) getActiveSession(w http.ResponseWriter, r *http.Request) {
	active, err := s.deps.Sessions.GetActiveSession(r.Context(), s.caller(r).UserID)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// POST /api/session/end/{sessionId}
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		s.WriteError(w, r, err)
		return
	}

	session, err := s.deps.Sessions.EndSession(r.Context(), sessionID, s.caller(r).UserID)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EndSessionResponse{Message: "Session ended successfully", SessionID: session.ID})
}

// GET /api/session/checked-in-students/{sessionCode}
func (s *Server) listCheckedIn(w http.ResponseWriter, r *http.Request) {
	students, err := s.deps.Sessions.ListCheckedIn(r.Context(), r.PathValue("sessionCode"))
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// GET /api/session/courses
func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.deps.Sessions.ListCourses(r.Context(), s.caller(r).UserID)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// GET /api/session/lecture-halls
func (s *Server) listLectureHalls(w http.ResponseWriter, r *http.Request) {
	halls, err := s.deps.Sessions.ListLectureHalls(r.Context())
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, halls)
}

// GET /api/session/course-times/{courseId}
func (s *Server) todayCourseTime(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathID(r, "courseId")
	if err != nil {
		s.WriteError(w, r, err)
		return
	}

	slot, err := s.deps.Sessions.TodayCourseTime(r.Context(), s.caller(r).UserID, courseID)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// POST /api/attendance/check-in
func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := decodeAndValidate(r, &req); err != nil {
		s.WriteError(w, r, err)
		return
	}

	record, err := s.deps.CheckIns.CheckIn(r.Context(), s.caller(r).UserID, strings.TrimSpace(req.SessionCode))
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// POST /api/manage-courses/courses
func (s *Server) createCourse(w http.ResponseWriter, r *http.Request) {
	var req interfaces.CourseInput
	if err := decodeAndValidate(r, &req); err != nil {
		s.WriteError(w, r, err)
		return
	}

	course, err := s.deps.Courses.CreateCourse(r.Context(), s.caller(r).UserID, req)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

// PUT /api/manage-courses/courses/{id}
func (s *Server) updateCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathID(r, "id")
	if err != nil {
		s.WriteError(w, r, err)
		return
	}

	var req interfaces.CourseInput
	if err := decodeAndValidate(r, &req); err != nil {
		s.WriteError(w, r, err)
		return
	}

	course, err := s.deps.Courses.UpdateCourse(r.Context(), s.caller(r).UserID, courseID, req)
	if err != nil {
		s.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}
	if s.deps.Registry != nil {
		response.Connections = s.deps.Registry.GetStats()
	}
	if s.deps.Hub != nil {
		response.Notifications = s.deps.Hub.GetStats()
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) (int, error) {
	kinds := []struct {
		kind   error
		status int
	}{
		{interfaces.ErrValidation, http.StatusBadRequest},
		{interfaces.ErrUnauthenticated, http.StatusUnauthorized},
		{interfaces.ErrForbidden, http.StatusForbidden},
		{interfaces.ErrNotFound, http.StatusNotFound},
		{interfaces.ErrConflict, http.StatusConflict},
		{interfaces.ErrRateLimited, http.StatusTooManyRequests},
		{interfaces.ErrTransient, http.StatusServiceUnavailable},
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, nil
}

// WriteError renders err as an ErrorResponse. Client errors carry their
// reason; server errors are logged and reported generically.
func (s *Server) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusFor(err)
	requestID := w.Header().Get("X-Request-ID")

	var message string
	switch {
	case code == http.StatusInternalServerError:
		log.Printf("Request failed: request_id=%s method=%s path=%s err=%v", requestID, r.Method, r.URL.Path, err)
		message = "internal server error"
	case code == http.StatusServiceUnavailable:
		log.Printf("Transient failure: request_id=%s method=%s path=%s err=%v", requestID, r.Method, r.URL.Path, err)
		message = "service temporarily unavailable, please retry"
	default:
		message = strings.TrimPrefix(err.Error(), kind.Error()+": ")
	}

	response := ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	}
	var fieldErr *validate.Error
	if errors.As(err, &fieldErr) {
		response.Message = "request validation failed"
		response.Fields = fieldErr.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, code, response)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func decodeAndValidate(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return interfaces.Validationf("invalid JSON body")
	}
	return validate.Struct(v)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, interfaces.Validationf("%s must be a positive integer", name)
	}
	return id, nil
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds every store call made on behalf of the request
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
