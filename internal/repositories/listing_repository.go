package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type itemRepository struct {
	db *db.DB
}

func NewItemRepository(database *db.DB) ItemRepository {
	return &itemRepository{db: database}
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) Update(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *itemRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Item, error) {
	var items []*models.Item
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ItemActive).
		Order("listed_at").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

type listingRepository struct {
	db *db.DB
}

func NewListingRepository(database *db.DB) ListingRepository {
	return &listingRepository{db: database}
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepository) ListByItem(ctx context.Context, itemID string) ([]*models.Listing, error) {
	var listings []*models.Listing
	if err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *listingRepository) Update(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Save(listing).Error
}
