package offline

import (
	"context"

	"github.com/roach88/leafline/internal/entity"
)

// GetScans returns scan records, from the remote service when possible.
func (s *Service) GetScans(ctx context.Context) ([]entity.ScanRecord, error) {
	return read[entity.ScanRecord](ctx, s, entity.KindScan)
}

// SaveScan writes a scan record.
func (s *Service) SaveScan(ctx context.Context, rec entity.ScanRecord) (Saved[entity.ScanRecord], error) {
	return write(ctx, s, rec)
}

// GetDirectory returns marketplace directory listings.
func (s *Service) GetDirectory(ctx context.Context) ([]entity.DirectoryRecord, error) {
	return read[entity.DirectoryRecord](ctx, s, entity.KindDirectory)
}

// SaveDirectoryRecord writes a directory listing.
func (s *Service) SaveDirectoryRecord(ctx context.Context, rec entity.DirectoryRecord) (Saved[entity.DirectoryRecord], error) {
	return write(ctx, s, rec)
}

// GetPromos returns promotional media.
func (s *Service) GetPromos(ctx context.Context) ([]entity.PromoMedia, error) {
	return read[entity.PromoMedia](ctx, s, entity.KindPromo)
}

// SavePromo writes a promotional media item.
func (s *Service) SavePromo(ctx context.Context, m entity.PromoMedia) (Saved[entity.PromoMedia], error) {
	return write(ctx, s, m)
}
