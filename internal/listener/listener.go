package listener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"omnistock/internal"
	"omnistock/internal/config"
	"omnistock/internal/connectors"
	gmailconnector "omnistock/internal/connectors/gmail"
	imapconnector "omnistock/internal/connectors/imap"
	"omnistock/internal/pipeline"
	"omnistock/internal/platform"
	"omnistock/internal/storage"
)

// Ingester is the slice of pipeline.Service the listener drives.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (pipeline.IngestResult, error)
	Preview(ctx context.Context, req pipeline.IngestRequest) (pipeline.Preview, error)
}

type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

type Service struct {
	mailbox      storage.Mailbox
	ingester     Ingester
	platforms    *platform.Registry
	cfg          config.Config
	logger       *logrus.Entry
	newConnector ConnectorFactory
}

type ProcessSummary struct {
	Processed int
	Skipped   int
	Failed    int
	Deferred  int
}

func NewService(mailbox storage.Mailbox, ingester Ingester, platforms *platform.Registry, cfg config.Config, logger *logrus.Logger) *Service {
	if platforms == nil {
		platforms = platform.MustDefault()
	}
	s := &Service{
		mailbox:   mailbox,
		ingester:  ingester,
		platforms: platforms,
		cfg:       cfg,
		logger:    logger.WithField("component", "listener"),
	}
	s.newConnector = s.makeConnector
	return s
}

// WithConnectorFactory swaps how mail connectors are built.
func (s *Service) WithConnectorFactory(f ConnectorFactory) *Service {
	s.newConnector = f
	return s
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Require("LISTENER_USER_ID", s.cfg.ListenerUserID); err != nil {
		return err
	}
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.WithError(err).Error("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ListenerInterval()):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) error {
	fetched, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	summary, err := s.ProcessPending(ctx, s.cfg.MailListenerProcessBatch)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"provider":  s.provider(),
		"fetched":   fetched.Fetched,
		"pending":   fetched.Pending,
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"deferred":  summary.Deferred,
	}).Info("listener cycle done")
	return nil
}

func (s *Service) Fetch(ctx context.Context) (connectors.SyncResult, error) {
	mailConnector, err := s.newConnector(ctx, s.provider())
	if err != nil {
		return connectors.SyncResult{}, err
	}
	inbox := connectors.NewInbox(s.mailbox, s.cfg.RawMailDir, mailConnector)
	return inbox.Sync(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
}

// ProcessPending ingests order attachments of fetched messages. A message whose user is
// mid-ingestion stays fetched and is retried next cycle.
func (s *Service) ProcessPending(ctx context.Context, limit int) (ProcessSummary, error) {
	var summary ProcessSummary
	if err := s.cfg.Require("LISTENER_USER_ID", s.cfg.ListenerUserID); err != nil {
		return summary, err
	}
	emails, err := s.mailbox.ListEmailsByStatus(ctx, internal.EmailFetched, limit)
	if err != nil {
		return summary, err
	}

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		status, err := s.processEmail(ctx, email)
		log := s.logger.WithFields(logrus.Fields{"email_id": email.ID, "message_id": email.MessageID})
		switch {
		case errors.Is(err, internal.ErrIngestionInProgress):
			log.Info("ingestion in progress, deferring message")
			summary.Deferred++
			continue
		case err != nil:
			log.WithError(err).Warn("message processing failed")
		}
		if err := s.mailbox.UpdateEmailStatus(ctx, email.ID, status); err != nil {
			return summary, fmt.Errorf("mark email %d %s: %w", email.ID, status, err)
		}
		switch status {
		case internal.EmailProcessed:
			summary.Processed++
		case internal.EmailSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Service) processEmail(ctx context.Context, email internal.EmailRow) (string, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return internal.EmailFailed, err
	}
	attachments, err := ExtractOrderAttachments(raw)
	if err != nil {
		return internal.EmailFailed, err
	}

	ingested := 0
	var failures []error
	for _, att := range attachments {
		name, ok := s.platforms.Detect(att.FileName)
		if !ok {
			s.logger.WithField("file", att.FileName).Debug("attachment names no platform")
			continue
		}
		req := pipeline.IngestRequest{
			UserID:   s.cfg.ListenerUserID,
			FileName: att.FileName,
			Content:  att.Content,
			Platform: string(name),
			Account: internal.StoreAccount{
				ID:       s.cfg.ListenerAccountID,
				Name:     s.cfg.ListenerAccountName,
				Platform: name,
			},
		}
		if s.cfg.MailListenerAutoExport {
			s.exportPreview(ctx, email, req)
		}
		res, err := s.ingester.Ingest(ctx, req)
		if errors.Is(err, internal.ErrIngestionInProgress) {
			return internal.EmailFetched, err
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", att.FileName, err))
			continue
		}
		ingested++
		s.logger.WithFields(logrus.Fields{
			"email_id":   email.ID,
			"file":       att.FileName,
			"trace_id":   res.TraceID,
			"new_orders": res.NewOrders,
			"skipped":    res.Skipped,
			"invalid":    res.Invalid,
		}).Info("attachment ingested")
	}

	switch {
	case len(failures) > 0:
		return internal.EmailFailed, errors.Join(failures...)
	case ingested == 0:
		return internal.EmailSkipped, nil
	default:
		return internal.EmailProcessed, nil
	}
}

func (s *Service) exportPreview(ctx context.Context, email internal.EmailRow, req pipeline.IngestRequest) {
	preview, err := s.ingester.Preview(ctx, req)
	if err != nil {
		s.logger.WithError(err).WithField("file", req.FileName).Warn("preview export skipped")
		return
	}
	base := strings.TrimSuffix(req.FileName, filepath.Ext(req.FileName))
	filename := fmt.Sprintf("%d_%s_%s.xlsx", email.ID, sanitizeFileName(email.MessageID), sanitizeFileName(base))
	outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
	if err := pipeline.ExportPreviewToXLSX(preview, outputPath); err != nil {
		s.logger.WithError(err).WithField("path", outputPath).Warn("preview export failed")
	}
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeFileName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
