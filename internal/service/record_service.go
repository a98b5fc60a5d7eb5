package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/pkg/label"
	"github.com/instrolab/lims-portal-api/pkg/urlx"
)

// recordReader is the slice of the records gateway the register needs.
type recordReader interface {
	GetRecord(ctx context.Context, id string) (*models.InwardRecord, error)
}

// RecordService serves committed records out of the register: cached
// detail views with display-ready photo URLs and label artwork.
type RecordService struct {
	records     recordReader
	locks       lockwatch.Source
	cache       *CacheService
	photoOrigin string
	logger      *zap.Logger
}

// NewRecordService constructs the register read side.
func NewRecordService(records recordReader, locks lockwatch.Source, cache *CacheService, photoOrigin string, logger *zap.Logger) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		records:     records,
		locks:       locks,
		cache:       cache,
		photoOrigin: photoOrigin,
		logger:      logger,
	}
}

// GetDetail returns one committed record enriched for display plus whether
// the body came from cache. The lock state is read live on every call so
// the register never shows a stale holder.
func (s *RecordService) GetDetail(ctx context.Context, id string) (*dto.RecordDetailView, bool, error) {
	view, hit, err := s.detail(ctx, id)
	if err != nil {
		return nil, false, err
	}
	view.Lock = s.lockView(ctx, id)
	return view, hit, nil
}

func (s *RecordService) detail(ctx context.Context, id string) (*dto.RecordDetailView, bool, error) {
	key := recordCacheKey(id)
	if s.cache.Enabled() {
		var cached dto.RecordDetailView
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	}

	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, false, err
	}
	view := s.project(rec)
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, view, 0)
	}
	return view, false, nil
}

func (s *RecordService) project(rec *models.InwardRecord) *dto.RecordDetailView {
	view := &dto.RecordDetailView{
		ID:             rec.ID,
		InwardNo:       rec.InwardNo,
		ReceivedDate:   rec.ReceivedDate,
		CustomerDCDate: rec.CustomerDCDate,
		CustomerID:     rec.CustomerID,
		CustomerName:   rec.CustomerName,
		ReceivedBy:     rec.ReceivedBy,
		Status:         rec.Status,
		Equipment:      make([]dto.RecordLineView, 0, len(rec.EquipmentList)),
		UpdatedAt:      rec.UpdatedAt,
	}
	if qr, err := label.QRDataURI(rec.InwardNo, 0); err == nil {
		view.QRCode = qr
	} else {
		s.logger.Warn("qr label generation failed",
			zap.String("inward_no", rec.InwardNo), zap.Error(err))
	}
	for _, l := range rec.EquipmentList {
		lv := dto.RecordLineView{
			ItemNo:          l.ItemNo,
			MaterialDesc:    l.MaterialDesc,
			Make:            l.Make,
			Model:           l.Model,
			Range:           l.Range,
			SerialNo:        l.SerialNo,
			Qty:             l.Qty,
			InspeNotes:      l.InspeNotes,
			CalibrationMode: l.CalibrationMode,
			SupplierName:    l.SupplierName,
			OutboundDCNo:    l.OutboundDCNo,
			InboundDCNo:     l.InboundDCNo,
			PhotoURLs:       urlx.JoinAll(s.photoOrigin, l.PhotoURLs),
			Remark:          l.Remark,
		}
		if bc, err := label.Code128DataURI(l.ItemNo, 0, 0); err == nil {
			lv.Barcode = bc
		} else {
			s.logger.Warn("barcode label generation failed",
				zap.String("item_no", l.ItemNo), zap.Error(err))
		}
		view.Equipment = append(view.Equipment, lv)
	}
	return view
}

func (s *RecordService) lockView(ctx context.Context, id string) dto.LockView {
	if s.locks == nil {
		return dto.LockView{}
	}
	state, err := s.locks.Fetch(ctx, "record", id)
	if err != nil {
		s.logger.Warn("lock state unavailable for record detail",
			zap.String("record_id", id), zap.Error(err))
		return dto.LockView{}
	}
	return dto.LockView{Locked: state.Locked, Holder: state.Holder}
}

func recordCacheKey(id string) string {
	return "record:" + id
}
