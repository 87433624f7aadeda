package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"omnistock/internal"
	"omnistock/internal/catalog"
	"omnistock/internal/events"
	"omnistock/internal/lock"
	"omnistock/internal/metrics"
	"omnistock/internal/platform"
	"omnistock/internal/sheet"
	"omnistock/internal/storage"
)

type Store interface {
	StockStore
	FetchCatalog(ctx context.Context, userID string) ([]internal.CatalogVariant, error)
	FetchExistingOrderIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	InTx(ctx context.Context, fn func(w storage.IngestWriter) error) error
	InsertRun(ctx context.Context, run internal.IngestionRun) error
}

type Deps struct {
	Store            Store
	Platforms        *platform.Registry
	Locker           lock.Locker
	Publisher        events.Publisher
	Metrics          *metrics.Registry
	Logger           *logrus.Logger
	StockConcurrency int
}

// Service ingests marketplace order files for one user at a time.
type Service struct {
	store      Store
	platforms  *platform.Registry
	locker     lock.Locker
	publisher  events.Publisher
	metrics    *metrics.Registry
	reconciler *Reconciler
	logger     *logrus.Entry
}

func NewService(d Deps) *Service {
	if d.Platforms == nil {
		d.Platforms = platform.MustDefault()
	}
	if d.Locker == nil {
		d.Locker = lock.NewMemory()
	}
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:      d.Store,
		platforms:  d.Platforms,
		locker:     d.Locker,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		reconciler: NewReconciler(d.Store, d.Publisher, d.Metrics, d.Logger, d.StockConcurrency),
		logger:     d.Logger.WithField("component", "pipeline"),
	}
}

type IngestRequest struct {
	UserID   string
	FileName string
	Content  []byte
	// Platform is a name or alias; blank means detect from FileName.
	Platform string
	Account  internal.StoreAccount
}

type IngestResult struct {
	TraceID   string            `json:"traceId"`
	UploadID  string            `json:"uploadId,omitempty"`
	Platform  internal.Platform `json:"platform"`
	NewOrders int               `json:"newOrders"`
	Skipped   int               `json:"skipped"`
	Invalid   int               `json:"invalid"`
}

type prepared struct {
	adapter  *Adapter
	rows     []internal.RawRow
	existing OrderIDSet
	catalog  *catalog.Snapshot
}

// Ingest persists the file's new orders and decrements stock for their line items.
// A StockReconciliationError is returned alongside a populated result because
// orders are already stored at that point.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()
	res := IngestResult{TraceID: traceID()}
	log := s.logger.WithFields(logrus.Fields{
		"trace_id": res.TraceID,
		"user_id":  req.UserID,
		"file":     req.FileName,
	})

	release, err := s.locker.Acquire(ctx, "ingest:"+req.UserID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return res, internal.ErrIngestionInProgress
		}
		return res, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	defer release()

	timings := map[string]float64{}
	mark := func(stage string, since time.Time) {
		timings[stage+"Ms"] = float64(time.Since(since).Milliseconds())
	}

	stageStart := time.Now()
	p, err := s.prepare(ctx, req)
	if err != nil {
		s.metrics.IngestRuns.WithLabelValues("unresolved", "error").Inc()
		log.WithError(err).Warn("ingestion rejected")
		return res, err
	}
	mark("prepare", stageStart)
	res.Platform = p.adapter.Platform()
	log = log.WithField("platform", res.Platform)

	stageStart = time.Now()
	outcome := p.adapter.Process(p.rows, p.existing)
	mark("validate", stageStart)
	res.NewOrders = len(outcome.NewOrders)
	res.Skipped = outcome.Skipped
	res.Invalid = outcome.Invalid

	var reconcileErr error
	if len(outcome.NewOrders) > 0 {
		stageStart = time.Now()
		uploadID, items, err := s.persist(ctx, req, res.Platform, outcome.NewOrders)
		if err != nil {
			s.metrics.IngestRuns.WithLabelValues(string(res.Platform), "error").Inc()
			log.WithError(err).Error("persist orders failed")
			return res, err
		}
		res.UploadID = uploadID
		mark("persist", stageStart)

		stageStart = time.Now()
		reconcileErr = s.reconciler.Reconcile(ctx, req.UserID, uploadID, items)
		mark("reconcile", stageStart)
		if reconcileErr != nil {
			log.WithError(reconcileErr).Error("stock reconciliation incomplete")
		}
	}

	timings["totalMs"] = float64(time.Since(start).Milliseconds())
	run := internal.IngestionRun{
		TraceID:  res.TraceID,
		UserID:   req.UserID,
		Platform: string(res.Platform),
		FileName: req.FileName,
		UploadID: res.UploadID,
		Timings:  timings,
		Counts: map[string]int{
			"rows":      len(p.rows),
			"newOrders": res.NewOrders,
			"skipped":   res.Skipped,
			"invalid":   res.Invalid,
		},
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		log.WithError(err).Warn("run not recorded")
	}

	outcomeLabel := "ok"
	if reconcileErr != nil {
		outcomeLabel = "partial"
	}
	s.metrics.IngestRuns.WithLabelValues(string(res.Platform), outcomeLabel).Inc()
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	s.metrics.OrdersIngested.Add(float64(res.NewOrders))
	s.metrics.OrdersSkipped.Add(float64(res.Skipped))
	s.metrics.OrdersInvalid.Add(float64(res.Invalid))

	event := events.NewEvent(events.SubjectIngestionCompleted, req.UserID, events.IngestionCompleted{
		TraceID:   res.TraceID,
		UploadID:  res.UploadID,
		Platform:  string(res.Platform),
		FileName:  req.FileName,
		NewOrders: res.NewOrders,
		Skipped:   res.Skipped,
		Invalid:   res.Invalid,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("ingestion event not published")
	}

	log.WithFields(logrus.Fields{
		"upload_id":  res.UploadID,
		"new_orders": res.NewOrders,
		"skipped":    res.Skipped,
		"invalid":    res.Invalid,
		"total_ms":   timings["totalMs"],
	}).Info("ingestion finished")
	return res, reconcileErr
}

func (s *Service) prepare(ctx context.Context, req IngestRequest) (*prepared, error) {
	decoded, err := sheet.Decode(req.FileName, req.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", internal.ErrUnreadableFile, req.FileName, err)
	}
	if len(decoded) < 2 {
		return nil, internal.ErrEmptyFile
	}

	var (
		variants []internal.CatalogVariant
		existing map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.store.FetchCatalog(gctx, req.UserID)
		if err != nil {
			return &StorageError{Stage: StageFetchCatalog, UserID: req.UserID, Err: err}
		}
		variants = v
		return nil
	})
	g.Go(func() error {
		ids, err := s.store.FetchExistingOrderIDs(gctx, req.UserID)
		if err != nil {
			return &StorageError{Stage: StageFetchOrderIDs, UserID: req.UserID, Err: err}
		}
		existing = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, internal.ErrEmptyCatalog
	}

	def, err := s.resolvePlatform(req)
	if err != nil {
		return nil, err
	}
	snapshot := catalog.NewSnapshot(variants)
	return &prepared{
		adapter:  NewAdapter(def, snapshot),
		rows:     BuildRawRows(decoded),
		existing: OrderIDSet(existing),
		catalog:  snapshot,
	}, nil
}

func (s *Service) resolvePlatform(req IngestRequest) (platform.Definition, error) {
	tag := strings.TrimSpace(req.Platform)
	if tag == "" {
		detected, ok := s.platforms.Detect(req.FileName)
		if !ok {
			return platform.Definition{}, fmt.Errorf("%w: cannot detect platform from %q", internal.ErrUnsupportedPlatform, req.FileName)
		}
		tag = string(detected)
	}
	def, ok := s.platforms.Lookup(tag)
	if !ok {
		return platform.Definition{}, fmt.Errorf("%w: %q", internal.ErrUnsupportedPlatform, tag)
	}
	return def, nil
}

func (s *Service) persist(ctx context.Context, req IngestRequest, name internal.Platform, orders []internal.ValidatedOrder) (string, []internal.LineItemRecord, error) {
	orderSNs := make([]string, len(orders))
	revenue := decimal.Zero
	for i, o := range orders {
		orderSNs[i] = o.OrderSN
		revenue = revenue.Add(o.Total)
	}
	batch := internal.UploadBatch{
		UserID:       req.UserID,
		FileName:     req.FileName,
		Platform:     name,
		Account:      req.Account,
		UploadDate:   time.Now().UTC().Truncate(24 * time.Hour),
		TotalOrders:  len(orders),
		TotalRevenue: revenue,
	}

	var (
		uploadID string
		items    []internal.LineItemRecord
	)
	err := s.store.InTx(ctx, func(w storage.IngestWriter) error {
		id, err := w.InsertUploadBatch(ctx, batch)
		if err != nil {
			return &StorageError{Stage: StageInsertUpload, UserID: req.UserID, OrderSNs: orderSNs, Err: err}
		}
		uploadID = id

		records := make([]internal.OrderRecord, len(orders))
		for i, o := range orders {
			records[i] = internal.OrderRecord{UserID: req.UserID, UploadID: id, Platform: name, Account: req.Account, Order: o}
		}
		ids, err := w.InsertOrders(ctx, records)
		if err != nil {
			return &StorageError{Stage: StageInsertOrders, UserID: req.UserID, UploadID: id, OrderSNs: orderSNs, Err: err}
		}
		if len(ids) != len(orders) {
			return &StorageError{Stage: StageInsertOrders, UserID: req.UserID, UploadID: id, OrderSNs: orderSNs,
				Err: fmt.Errorf("expected %d order ids, got %d", len(orders), len(ids))}
		}

		items = items[:0]
		for i, o := range orders {
			for _, it := range o.Items {
				items = append(items, internal.LineItemRecord{
					OrderID:     ids[i],
					UserID:      req.UserID,
					OrderSN:     o.OrderSN,
					SKUVariant:  it.SKUVariant,
					ProductName: it.ProductName,
					Quantity:    it.Quantity,
					UnitPrice:   it.UnitPrice,
				})
			}
		}
		if err := w.InsertLineItems(ctx, items); err != nil {
			return &StorageError{Stage: StageInsertItems, UserID: req.UserID, UploadID: id, OrderSNs: orderSNs, Err: err}
		}
		return nil
	})
	if err != nil {
		var se *StorageError
		if !errors.As(err, &se) {
			err = &StorageError{Stage: StageCommit, UserID: req.UserID, UploadID: uploadID, OrderSNs: orderSNs, Err: err}
		}
		return "", nil, err
	}
	return uploadID, items, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
