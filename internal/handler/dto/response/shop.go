package response

import (
	"time"

	"flashsale-starter/internal/domain/shop"
)

type ShopResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TypeID    int64     `json:"typeId"`
	Address   string    `json:"address"`
	AvgPrice  int64     `json:"avgPrice"`
	Sold      int       `json:"sold"`
	Comments  int       `json:"comments"`
	Score     int       `json:"score"`
	OpenHours string    `json:"openHours"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewShopResponse(s *shop.Shop) ShopResponse {
	return ShopResponse{
		ID:        s.ID,
		Name:      s.Name,
		TypeID:    s.TypeID,
		Address:   s.Address,
		AvgPrice:  s.AvgPrice,
		Sold:      s.Sold,
		Comments:  s.Comments,
		Score:     s.Score,
		OpenHours: s.OpenHours,
		UpdatedAt: s.UpdatedAt,
	}
}
