package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/fyerfyer/esg-insight/internal/metrics"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/fyerfyer/esg-insight/internal/repository"
	"github.com/fyerfyer/esg-insight/internal/scoring"
	"github.com/fyerfyer/esg-insight/pkg/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DefaultMaxReportSize 上传报告的默认大小上限
const DefaultMaxReportSize int64 = 32 << 20

// ReportResult 上传报告的处理结果
type ReportResult struct {
	Report *models.Report `json:"report"`
	Score  scoring.Report `json:"score"`
	Index  *IndexInfo     `json:"index,omitempty"`
}

// ReportService 报告服务
// 负责保存原始文件、提取文本、评分并建立索引
type ReportService struct {
	storage   storage.Storage
	reports   repository.ReportRepository
	retrieval *RetrievalService
	maxSize   int64
	logger    *logrus.Logger
}

// ReportOption 报告服务配置选项
type ReportOption func(*ReportService)

// WithReportLogger 设置日志记录器
func WithReportLogger(logger *logrus.Logger) ReportOption {
	return func(s *ReportService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxReportSize 设置上传大小上限
func WithMaxReportSize(size int64) ReportOption {
	return func(s *ReportService) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

// WithRetrieval 设置检索服务，设置后上传的报告会自动建立索引
func WithRetrieval(r *RetrievalService) ReportOption {
	return func(s *ReportService) {
		s.retrieval = r
	}
}

// NewReportService 创建报告服务
func NewReportService(store storage.Storage, reports repository.ReportRepository, opts ...ReportOption) *ReportService {
	s := &ReportService{
		storage: store,
		reports: reports,
		maxSize: DefaultMaxReportSize,
		logger:  logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 对文本评分
func (s *ReportService) Score(ctx context.Context, text string) (scoring.Report, error) {
	report, err := scoring.Score(text)
	if err != nil {
		return scoring.Report{}, newError(KindInvalidInput, "report.Score", err)
	}
	return report, nil
}

// Upload 保存报告、评分并在配置了检索服务时建立索引
// indexID 为空时使用报告ID
func (s *ReportService) Upload(ctx context.Context, r io.Reader, filename, indexID string) (*ReportResult, error) {
	const op = "report.Upload"
	if document.DetectContentType(filename) == document.Unknown {
		return nil, newError(KindInvalidInput, op, fmt.Errorf("%w: %s", document.ErrUnsupportedType, filename))
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, newError(KindInvalidInput, op, fmt.Errorf("failed to read upload: %w", err))
	}
	if int64(len(data)) > s.maxSize {
		return nil, errorf(KindInvalidInput, op, "report exceeds %d bytes", s.maxSize)
	}

	text, err := document.ExtractText(bytes.NewReader(data), filename)
	if err != nil {
		return nil, newError(KindInvalidInput, op, fmt.Errorf("failed to extract text: %w", err))
	}
	score, err := s.Score(ctx, text)
	if err != nil {
		return nil, err
	}

	info, err := s.storage.Save(ctx, bytes.NewReader(data), filename)
	if err != nil {
		return nil, newError(KindInternal, op, fmt.Errorf("failed to store report: %w", err))
	}

	report := &models.Report{
		ID:          info.ID,
		FileName:    filename,
		FileType:    string(document.DetectContentType(filename)),
		StoragePath: info.Path,
		FileSize:    info.Size,
		TextLength:  len([]rune(text)),
		Status:      models.ReportStatusScored,
	}
	applyScore(report, score)

	repo := s.reports.WithContext(ctx)
	if err := repo.Create(report); err != nil {
		return nil, newError(KindInternal, op, fmt.Errorf("failed to save report: %w", err))
	}
	metrics.IncReportsScored()

	result := &ReportResult{Report: report, Score: score}
	s.logger.WithFields(logrus.Fields{
		"report_id":     report.ID,
		"file_name":     filename,
		"environmental": report.Environmental,
		"social":        report.Social,
		"governance":    report.Governance,
	}).Info("Report scored")

	if s.retrieval == nil {
		return result, nil
	}

	if strings.TrimSpace(indexID) == "" {
		indexID = report.ID
	}
	idx, err := s.index(ctx, report, text, indexID)
	if err != nil {
		return result, err
	}
	result.Index = idx
	return result, nil
}

// Reindex 从存储重新读取报告并重建索引
func (s *ReportService) Reindex(ctx context.Context, reportID, indexID string) (*IndexInfo, error) {
	const op = "report.Reindex"
	if s.retrieval == nil {
		return nil, errorf(KindConfiguration, op, "retrieval is not configured")
	}
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}

	rc, err := s.storage.Open(ctx, report.StoragePath)
	if err != nil {
		return nil, newError(KindInternal, op, fmt.Errorf("failed to open stored report: %w", err))
	}
	defer rc.Close()

	text, err := document.ExtractText(rc, report.FileName)
	if err != nil {
		return nil, newError(KindInvalidInput, op, fmt.Errorf("failed to extract text: %w", err))
	}
	if strings.TrimSpace(indexID) == "" {
		indexID = report.IndexID
		if indexID == "" {
			indexID = report.ID
		}
	}
	return s.index(ctx, report, text, indexID)
}

// index 建立索引并更新报告状态
func (s *ReportService) index(ctx context.Context, report *models.Report, text, indexID string) (*IndexInfo, error) {
	repo := s.reports.WithContext(ctx)
	idx, err := s.retrieval.BuildIndex(ctx, []document.Document{{Text: text, SourceID: report.FileName}}, indexID)
	if err != nil {
		report.Status = models.ReportStatusFailed
		report.Error = err.Error()
		if uerr := repo.Update(report); uerr != nil {
			s.logger.WithError(uerr).WithField("report_id", report.ID).Error("Failed to update report status")
		}
		s.logger.WithError(err).WithField("report_id", report.ID).Error("Failed to index report")
		return nil, err
	}

	report.Status = models.ReportStatusIndexed
	report.IndexID = idx.IndexID
	report.Error = ""
	if err := repo.Update(report); err != nil {
		return idx, newError(KindInternal, "report.index", fmt.Errorf("failed to update report: %w", err))
	}
	return idx, nil
}

// Get 获取报告
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.reports.WithContext(ctx).GetByID(id)
	if errors.Is(err, models.ErrReportNotFound) {
		return nil, newError(KindNotFound, "report.Get", err)
	}
	if err != nil {
		return nil, newError(KindInternal, "report.Get", err)
	}
	return report, nil
}

// List 分页列出报告
func (s *ReportService) List(ctx context.Context, offset, limit int, status models.ReportStatus) ([]*models.Report, int64, error) {
	reports, total, err := s.reports.WithContext(ctx).List(offset, limit, status)
	if err != nil {
		return nil, 0, newError(KindInternal, "report.List", err)
	}
	return reports, total, nil
}

// Delete 删除报告记录和原始文件，索引需要单独删除
func (s *ReportService) Delete(ctx context.Context, id string) error {
	const op = "report.Delete"
	report, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, report.StoragePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return newError(KindInternal, op, err)
	}
	if err := s.reports.WithContext(ctx).Delete(id); err != nil {
		return newError(KindInternal, op, err)
	}
	s.logger.WithField("report_id", id).Info("Report deleted")
	return nil
}

// applyScore 把评分写入报告记录
func applyScore(report *models.Report, score scoring.Report) {
	report.Environmental = score.Scores[scoring.Environmental]
	report.Social = score.Scores[scoring.Social]
	report.Governance = score.Scores[scoring.Governance]
	if matches, err := json.Marshal(score.Matches); err == nil {
		report.MatchedTerms = datatypes.JSON(matches)
	}
}
