package notification

import (
	"context"
	"time"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Sender --dir=. --output=./mocks --outpkg=mocks

// Sender транспорт уведомлений (Telegram)
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Alerter --dir=. --output=./mocks --outpkg=mocks

// Alerter получает уведомления, исчерпавшие попытки доставки
type Alerter interface {
	Alert(ctx context.Context, failure *DeliveryFailedError) error
}

// Store задачи на уведомление плюс чтение заказа для текста сообщения
type Store interface {
	repository.NotificationRepository
	GetByID(ctx context.Context, id int64) (repository.Order, error)
}

// Sleeper задержка между попытками, подменяется в тестах
type Sleeper interface {
	// Sleep ждёт d или отмены ctx
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultSleeper реализует Sleeper через time.After
type DefaultSleeper struct{}

// Sleep возвращает ctx.Err(), если контекст отменён раньше
func (DefaultSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
