package request

import "flashsale-starter/internal/domain/shop"

type UpdateShopRequest struct {
	Name      string `json:"name" binding:"required,max=255"`
	TypeID    int64  `json:"typeId" binding:"required,gt=0"`
	Address   string `json:"address" binding:"required,max=512"`
	AvgPrice  int64  `json:"avgPrice" binding:"gte=0"`
	OpenHours string `json:"openHours" binding:"max=64"`
}

func (r *UpdateShopRequest) ToDomain(id int64) *shop.Shop {
	return &shop.Shop{
		ID:        id,
		Name:      r.Name,
		TypeID:    r.TypeID,
		Address:   r.Address,
		AvgPrice:  r.AvgPrice,
		OpenHours: r.OpenHours,
	}
}
