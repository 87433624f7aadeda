package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/metrics"
	"omnistock/internal/pipeline"
	"omnistock/internal/stock"
)

const (
	userHeader     = "X-User-ID"
	userContextKey = "user_id"
	maxUploadBytes = 32 << 20
)

type Deps struct {
	Ingest  *pipeline.Service
	Catalog *catalog.Service
	Stock   *stock.Service
	Health  func(ctx context.Context) error
	Metrics *metrics.Registry
	Logger  *logrus.Logger

	// MaxUploadBytes defaults to 32 MiB.
	MaxUploadBytes int64
}

type Server struct {
	ingest  *pipeline.Service
	catalog *catalog.Service
	stock   *stock.Service
	health  func(ctx context.Context) error
	metrics *metrics.Registry
	logger  *logrus.Entry

	maxUpload int64
}

func NewServer(d Deps) *Server {
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = maxUploadBytes
	}
	if d.Health == nil {
		d.Health = func(context.Context) error { return nil }
	}
	return &Server{
		ingest:  d.Ingest,
		catalog: d.Catalog,
		stock:   d.Stock,
		health:  d.Health,
		metrics: d.Metrics,
		logger:  d.Logger.WithField("component", "httpapi"),

		maxUpload: d.MaxUploadBytes,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())
	r.MaxMultipartMemory = s.maxUpload

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/api/v1", requireUser())
	{
		v1.POST("/uploads", s.upload)
		v1.POST("/uploads/preview", s.preview)
		v1.GET("/catalog", s.listCatalog)
		v1.POST("/catalog/import", s.importCatalog)
		v1.POST("/stock/adjustments", s.adjustStock)
		v1.GET("/stock/history", s.stockHistory)
	}
	return r
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: APIError{Code: "USER_REQUIRED", Message: userHeader + " header is required"},
			})
			return
		}
		c.Set(userContextKey, userID)
		c.Next()
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		s.logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"route":       route,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request")
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "omnistock"})
}

func userID(c *gin.Context) string {
	return c.GetString(userContextKey)
}

func (s *Server) readUpload(c *gin.Context) (string, []byte, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "FILE_REQUIRED", "upload an xlsx, xls or csv order export in the file field")
		return "", nil, false
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		badRequest(c, "FILE_UNREADABLE", err.Error())
		return "", nil, false
	}
	if int64(len(content)) > s.maxUpload {
		badRequest(c, "FILE_TOO_LARGE", fmt.Sprintf("uploads are limited to %d bytes", s.maxUpload))
		return "", nil, false
	}
	return header.Filename, content, true
}

func (s *Server) ingestRequest(c *gin.Context) (pipeline.IngestRequest, bool) {
	name, content, ok := s.readUpload(c)
	if !ok {
		return pipeline.IngestRequest{}, false
	}
	platformTag := strings.TrimSpace(c.PostForm("platform"))
	return pipeline.IngestRequest{
		UserID:   userID(c),
		FileName: name,
		Content:  content,
		Platform: platformTag,
		Account: internal.StoreAccount{
			ID:   strings.TrimSpace(c.PostForm("account_id")),
			Name: strings.TrimSpace(c.PostForm("account_name")),
		},
	}, true
}

func (s *Server) upload(c *gin.Context) {
	req, ok := s.ingestRequest(c)
	if !ok {
		return
	}
	res, err := s.ingest.Ingest(c.Request.Context(), req)
	if err != nil {
		var data any
		if res.UploadID != "" {
			data = res
		}
		s.fail(c, err, data)
		return
	}
	created(c, res)
}

func (s *Server) preview(c *gin.Context) {
	req, ok := s.ingestRequest(c)
	if !ok {
		return
	}
	p, err := s.ingest.Preview(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	okJSON(c, p)
}

func (s *Server) listCatalog(c *gin.Context) {
	variants, err := s.catalog.List(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	if variants == nil {
		variants = []internal.CatalogVariant{}
	}
	okJSON(c, variants)
}

func (s *Server) importCatalog(c *gin.Context) {
	name, content, ok := s.readUpload(c)
	if !ok {
		return
	}
	res, err := s.catalog.Import(c.Request.Context(), catalog.ImportRequest{
		UserID:   userID(c),
		FileName: name,
		Content:  content,
	})
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	okJSON(c, res)
}

func (s *Server) adjustStock(c *gin.Context) {
	var adj stock.Adjustment
	if err := c.ShouldBindJSON(&adj); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return
	}
	adj.UserID = userID(c)
	movement, err := s.stock.Adjust(c.Request.Context(), adj)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	created(c, movement)
}

func (s *Server) stockHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		badRequest(c, "INVALID_LIMIT", "limit must be a positive integer")
		return
	}
	movements, err := s.stock.History(c.Request.Context(), userID(c), min(limit, 1000))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	if movements == nil {
		movements = []internal.StockMovement{}
	}
	okJSON(c, movements)
}
