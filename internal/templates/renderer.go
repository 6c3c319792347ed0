package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

//go:embed files/*.tmpl
var files embed.FS

// MessageData данные для шаблонов уведомлений
type MessageData struct {
	OrderID      int64
	Amount       string
	Email        string
	Phone        string
	Address      string
	DeliveryTime string
}

// DataFromOrder собирает MessageData из заказа; сумма с двумя знаками
func DataFromOrder(o repository.Order) MessageData {
	return MessageData{
		OrderID:      o.ID,
		Amount:       o.TotalAmount.StringFixed(repository.AmountScale),
		Email:        o.Email,
		Phone:        o.Phone,
		Address:      o.DeliveryAddress,
		DeliveryTime: o.DeliveryTime,
	}
}

// Renderer рендерит текст уведомления по статусу заказа
type Renderer struct {
	byStatus map[repository.OrderStatus]*template.Template
}

// NewRenderer загружает встроенные шаблоны для терминальных статусов
func NewRenderer() (*Renderer, error) {
	r := &Renderer{byStatus: make(map[repository.OrderStatus]*template.Template)}

	for _, status := range []repository.OrderStatus{
		repository.StatusPaid,
		repository.StatusPaymentFailed,
		repository.StatusCanceled,
	} {
		name := "files/" + string(status) + ".tmpl"
		tmpl, err := template.ParseFS(files, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", status, err)
		}
		r.byStatus[status] = tmpl.Option("missingkey=error")
	}

	return r, nil
}

// Render возвращает текст сообщения о переходе заказа в status
func (r *Renderer) Render(status repository.OrderStatus, data MessageData) (string, error) {
	tmpl, ok := r.byStatus[status]
	if !ok {
		return "", fmt.Errorf("no template for status %q", status)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", status, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
