package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/analytics"
	"github.com/hostreel/viewlens/internal/cache"
	"github.com/hostreel/viewlens/internal/config"
	"github.com/hostreel/viewlens/internal/database"
	"github.com/hostreel/viewlens/internal/geo"
	"github.com/hostreel/viewlens/internal/metrics"
	"github.com/hostreel/viewlens/internal/middleware"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/storage"
	"github.com/hostreel/viewlens/internal/timerange"
	"github.com/hostreel/viewlens/internal/useragent"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the analytics services.
type Server struct {
	ingest    *analytics.IngestService
	analytics *analytics.Service
	videos    storage.VideoRepo
	cache     cache.Cache
	logger    *zap.Logger
	config    *config.Config
	metrics   *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories
	var eventStore storage.EventStore
	var sessionRepo storage.SessionRepo
	var videoRepo storage.VideoRepo

	if deps.DB != nil {
		eventStore = storage.NewPostgresEventStore(deps.DB.Pool)
		sessionRepo = storage.NewPostgresSessionRepo(deps.DB.Pool)
		videoRepo = storage.NewPostgresVideoRepo(deps.DB.Pool)
	} else {
		eventStore = storage.NewInMemoryEventStore()
		sessionRepo = storage.NewInMemorySessionRepo()
		videoRepo = storage.NewInMemoryVideoRepo()
	}

	// Initialize geo resolver
	var provider geo.Provider
	if deps.Config.Geo.Enabled {
		p, err := geo.NewMaxMindProvider(deps.Config.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to open geo database, locations will be Unknown", zap.Error(err))
		} else {
			provider = p
		}
	}
	resolver := geo.NewCachingResolver(provider, deps.Config.Geo.CacheSize, deps.Config.Geo.CacheTTL, deps.Metrics)

	// Initialize response cache
	var responseCache cache.Cache = cache.Noop{}
	if deps.Config.Cache.Enabled {
		if deps.Redis != nil {
			responseCache = cache.NewRedisCache(deps.Redis.Client, deps.Config.Cache.Prefix, deps.Logger)
		} else {
			responseCache = cache.NewMemoryCache(deps.Config.Cache.MaxSize)
		}
	}

	parser := useragent.NewHeuristicParser()

	s := &Server{
		ingest:    analytics.NewIngestService(eventStore, sessionRepo, deps.Logger, deps.Metrics),
		analytics: analytics.NewService(eventStore, sessionRepo, videoRepo, parser, resolver, deps.Logger, deps.Metrics),
		videos:    videoRepo,
		cache:     responseCache,
		logger:    deps.Logger,
		config:    deps.Config,
		metrics:   deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Event ingestion
	mux.HandleFunc("/api/analytics/events", s.handleIngest)

	// Per-video aggregations
	mux.HandleFunc("/api/analytics/events/summary/", s.handleSummary)
	mux.HandleFunc("/api/analytics/events/insights/", s.handleInsights)
	mux.HandleFunc("/api/analytics/retention/", s.handleRetention)
	mux.HandleFunc("/api/analytics/views/", s.handleViews)
	mux.HandleFunc("/api/analytics/videos/", s.handleVideoSubresource)

	// Organization-wide aggregations
	mux.HandleFunc("/api/analytics/organization/retention", s.handleOrganizationRetention)

	// Video registry
	mux.HandleFunc("/api/videos", s.handleVideos)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Event Ingestion ----

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in analytics.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	in.IP = middleware.ClientIP(r)
	in.UserAgent = r.UserAgent()

	if err := s.ingest.Record(r.Context(), in); err != nil {
		if errors.Is(err, analytics.ErrInvalidEvent) {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("event ingestion failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, nil)
}

// ---- Summary ----

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := strings.TrimPrefix(r.URL.Path, "/api/analytics/events/summary/")
	if videoID == "" || strings.Contains(videoID, "/") {
		http.NotFound(w, r)
		return
	}

	q := s.parseSummaryQuery(r)
	key := fmt.Sprintf("summary:%s:%s:%d:%t", videoID, rangeKey(q.Range), q.BucketSize, q.PerSecond)
	if s.serveCached(w, r, key) {
		return
	}

	summary, err := s.analytics.Summary(r.Context(), videoID, q)
	if err != nil {
		s.serviceError(w, "summary failed", err)
		return
	}

	s.cachedJSONResponse(w, r, key, summary)
}

// ---- Insights ----

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := strings.TrimPrefix(r.URL.Path, "/api/analytics/events/insights/")
	if videoID == "" || strings.Contains(videoID, "/") {
		http.NotFound(w, r)
		return
	}

	q := s.parseSummaryQuery(r)
	q.BucketSize = analytics.ClampBucketSize(s.queryInt(r, "bucketSize"), s.config.Analytics.InsightsBucketSize)
	key := fmt.Sprintf("insights:%s:%s:%d:%d", videoID, rangeKey(q.Range), q.BucketSize, q.TopDropOffs)
	if s.serveCached(w, r, key) {
		return
	}

	insights, err := s.analytics.Insights(r.Context(), videoID, q)
	if err != nil {
		s.serviceError(w, "insights failed", err)
		return
	}

	s.cachedJSONResponse(w, r, key, insights)
}

// ---- Retention ----

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := strings.TrimPrefix(r.URL.Path, "/api/analytics/retention/")
	if videoID == "" || strings.Contains(videoID, "/") {
		http.NotFound(w, r)
		return
	}

	rc := s.requestContext(r)
	tr := s.parseRange(r)
	bucketSize := analytics.ClampBucketSize(s.queryInt(r, "bucketSize"), s.config.Analytics.DefaultBucketSize)

	retention, err := s.analytics.Retention(r.Context(), rc, videoID, tr, bucketSize)
	if err != nil {
		s.serviceError(w, "retention failed", err)
		return
	}

	s.jsonResponse(w, retention)
}

// ---- Views ----

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videoID := strings.TrimPrefix(r.URL.Path, "/api/analytics/views/")
	if videoID == "" || strings.Contains(videoID, "/") {
		http.NotFound(w, r)
		return
	}

	rc := s.requestContext(r)
	tr := s.parseRange(r)

	stats, err := s.analytics.Views(r.Context(), rc, videoID, tr)
	if err != nil {
		s.serviceError(w, "views failed", err)
		return
	}

	s.jsonResponse(w, stats)
}

// ---- Viewer Analytics ----

func (s *Server) handleVideoSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/analytics/videos/")
	videoID, ok := strings.CutSuffix(rest, "/viewer-analytics")
	if !ok || videoID == "" || strings.Contains(videoID, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := s.requestContext(r)
	tr := s.parseRange(r)

	key := fmt.Sprintf("viewer_analytics:%s:%s:%s", rc.OrganizationID, videoID, rangeKey(tr))
	if s.serveCached(w, r, key) {
		return
	}

	va, err := s.analytics.ViewerAnalytics(r.Context(), rc, videoID, tr)
	if err != nil {
		s.serviceError(w, "viewer analytics failed", err)
		return
	}

	s.cachedJSONResponse(w, r, key, va)
}

// ---- Organization Retention ----

func (s *Server) handleOrganizationRetention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := s.requestContext(r)
	bucketSize := analytics.ClampBucketSize(s.queryInt(r, "bucketSize"), s.config.Analytics.DefaultBucketSize)

	curves, err := s.analytics.OrganizationRetention(r.Context(), rc, bucketSize)
	if err != nil {
		s.logger.Error("organization retention failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, curves)
}

// ---- Video Registry ----

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rc := s.requestContext(r)
		list, err := s.videos.ListByOrganization(r.Context(), rc.OrganizationID)
		if err != nil {
			s.logger.Error("failed to list videos", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var v models.Video
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if v.ID == "" {
			s.errorResponse(w, "id is required", http.StatusBadRequest)
			return
		}
		rc := s.requestContext(r)
		if rc.OrganizationID != "" {
			v.OrganizationID = rc.OrganizationID
		}
		if err := s.videos.Upsert(r.Context(), &v); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, v)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Request parsing ----

// requestContext returns the authenticated caller identity. With auth
// disabled the X-Organization-ID header stands in, which keeps local
// development and the in-memory mode usable.
func (s *Server) requestContext(r *http.Request) models.RequestContext {
	if rc, ok := middleware.RequestContextFrom(r.Context()); ok {
		return rc
	}
	return models.RequestContext{
		OrganizationID: r.Header.Get("X-Organization-ID"),
		UserID:         r.Header.Get("X-User-ID"),
	}
}

// parseRange parses startDate/endDate/timezone query parameters.
func (s *Server) parseRange(r *http.Request) timerange.Range {
	q := r.URL.Query()
	return timerange.Parse(q.Get("startDate"), q.Get("endDate"), q.Get("timezone"))
}

func (s *Server) parseSummaryQuery(r *http.Request) analytics.SummaryQuery {
	return analytics.SummaryQuery{
		Range:       s.parseRange(r),
		BucketSize:  analytics.ClampBucketSize(s.queryInt(r, "bucketSize"), s.config.Analytics.DefaultBucketSize),
		PerSecond:   r.URL.Query().Get("perSecond") == "true",
		TopDropOffs: analytics.ClampTopDropOffs(s.queryInt(r, "topDropOffs"), s.config.Analytics.DefaultTopDropOffs),
	}
}

// queryInt returns the named query parameter as an int, 0 when absent
// or malformed. Callers clamp the result.
func (s *Server) queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// rangeKey renders a time range into a cache key fragment.
func rangeKey(r timerange.Range) string {
	start, end := int64(0), int64(0)
	if r.Start != nil {
		start = r.Start.UnixNano()
	}
	if r.End != nil {
		end = r.End.UnixNano()
	}
	return fmt.Sprintf("%d-%d", start, end)
}

// ---- Response helpers ----

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}

// serviceError maps analytics service errors to status codes.
func (s *Server) serviceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, analytics.ErrVideoNotFound):
		s.errorResponse(w, analytics.ErrVideoNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, analytics.ErrVideoNotOwned):
		s.errorResponse(w, analytics.ErrVideoNotOwned.Error(), http.StatusNotFound)
	default:
		s.logger.Error(msg, zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// serveCached writes a previously cached response body if one exists.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	body, ok := s.cache.Get(r.Context(), key)
	if s.metrics != nil {
		s.metrics.RecordCacheRequest(ok)
	}
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
	return true
}

// cachedJSONResponse writes the success envelope and stores the exact
// bytes in the response cache.
func (s *Server) cachedJSONResponse(w http.ResponseWriter, r *http.Request, key string, data interface{}) {
	body, err := json.Marshal(envelope{Success: true, Data: data})
	if err != nil {
		s.logger.Error("response marshal failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.cache.Set(r.Context(), key, body, s.config.Cache.TTL)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
