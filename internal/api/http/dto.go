package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

// OrderItem товар в HTTP запросе/ответе
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int32  `json:"quantity"`
}

// OrderRequest тело POST /order
type OrderRequest struct {
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	DeliveryTime string      `json:"delivery_time"`
	OrderTime    string      `json:"order_time"`
	Items        []OrderItem `json:"items"`
	// TotalAmount принимает и число 1500.00, и строку "1500.00"
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CreateOrderResponse ответ POST /order
type CreateOrderResponse struct {
	OrderID    int64  `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

// OrderResponse ответ GET /orders/{id}
type OrderResponse struct {
	OrderID          int64       `json:"order_id"`
	Status           string      `json:"status"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone"`
	Address          string      `json:"address"`
	DeliveryTime     string      `json:"delivery_time"`
	OrderTime        string      `json:"order_time"`
	Items            []OrderItem `json:"items"`
	TotalAmount      string      `json:"total_amount"`
	PaymentID        string      `json:"payment_id,omitempty"`
	NotifiedStatuses []string    `json:"notified_statuses"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// StatusResponse ответ webhook и payment_success
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse тело ошибки; OrderID заполняется, если заказ уже создан
type ErrorResponse struct {
	Error   string `json:"error"`
	OrderID int64  `json:"order_id,omitempty"`
}

func toOrderResponse(o repository.Order) OrderResponse {
	items := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItem{Name: item.Name, Quantity: item.Quantity})
	}
	notified := make([]string, 0, len(o.NotifiedStatuses))
	for _, s := range o.NotifiedStatuses {
		notified = append(notified, string(s))
	}
	return OrderResponse{
		OrderID:          o.ID,
		Status:           string(o.Status),
		Email:            o.Email,
		Phone:            o.Phone,
		Address:          o.DeliveryAddress,
		DeliveryTime:     o.DeliveryTime,
		OrderTime:        o.OrderTime,
		Items:            items,
		TotalAmount:      o.TotalAmount.StringFixed(repository.AmountScale),
		PaymentID:        o.PaymentSessionID,
		NotifiedStatuses: notified,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}
