// Package metrics содержит prometheus-метрики сервиса: оформление заказов,
// HTTP-запросы и публикация outbox.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// register регистрирует коллектор. Повторная регистрация того же имени
// возвращает уже существующий коллектор, что позволяет создавать метрики
// несколько раз в тестах и при пересборке зависимостей.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T, name string) T {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
		}
		return existing
	}
	panic(fmt.Sprintf("register collector %q: %v", name, err))
}
