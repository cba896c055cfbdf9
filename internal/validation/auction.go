package validation

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
)

// CheckNewAuction проверяет параметры создаваемого аукциона.
func CheckNewAuction(n model.NewAuction) error {
	if n.ArtworkID <= 0 {
		return fmt.Errorf("%w: artwork id is required", bidderrors.ErrInvalidAuction)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", bidderrors.ErrInvalidAuction)
	}
	if n.StartTime.IsZero() || n.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end time are required", bidderrors.ErrInvalidAuction)
	}
	if n.EndTime.Before(n.StartTime) {
		return fmt.Errorf("%w: end time before start time", bidderrors.ErrInvalidAuction)
	}
	if n.StartingAmount < 0 {
		return fmt.Errorf("%w: starting amount must not be negative", bidderrors.ErrInvalidAuction)
	}
	return nil
}
