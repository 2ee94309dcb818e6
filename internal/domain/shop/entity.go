package shop

import "time"

// Shop is the read-heavy entity served through the cache resilience
// layer. Fields are exported because the cached JSON envelope needs to
// round-trip through encoding/json.
type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TypeID    int64     `json:"typeId"`
	Address   string    `json:"address"`
	AvgPrice  int64     `json:"avgPrice"`
	Sold      int       `json:"sold"`
	Comments  int       `json:"comments"`
	Score     int       `json:"score"`
	OpenHours string    `json:"openHours"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
