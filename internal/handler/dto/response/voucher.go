package response

type SeckillOrderResponse struct {
	OrderID int64 `json:"orderId,string"`
}
