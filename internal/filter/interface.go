package filter

import (
	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/models"
)

// StepFilter интерфейс для фильтров шагов полета.
// Фильтр изменяет шаги на месте и возвращает ошибку, если результат нарушает инварианты.
type StepFilter interface {
	// Filter применяет фильтр к шагам
	Filter(steps *models.FlightSteps) error

	// Name возвращает имя фильтра (используется как метка метрик)
	Name() string

	// Description возвращает описание фильтра
	Description() string
}

// Settings параметры, общие для фильтров конвейера
type Settings struct {
	Gimbal        models.GimbalDataAvail
	CameraDownDeg float64
	OnGroundAt    models.OnGroundAt
	SmoothSize    int
	HFOVDeg       float64
	VFOVDeg       float64
}

// SettingsFrom собирает параметры фильтров из конфигурации полета.
// Если парсер сам определил наличие данных подвеса (AutoYes), это значение важнее настройки.
func SettingsFrom(cfg config.FlightConfig, parsed models.GimbalDataAvail) Settings {
	gimbal := cfg.GimbalDataAvail
	if parsed == models.GimbalAutoYes {
		gimbal = parsed
	}
	return Settings{
		Gimbal:        gimbal,
		CameraDownDeg: cfg.CameraDownDeg,
		OnGroundAt:    cfg.OnGroundAt,
		SmoothSize:    cfg.SmoothSectionSize,
		HFOVDeg:       cfg.Camera.HFOVDeg,
		VFOVDeg:       cfg.Camera.VFOVDeg(),
	}
}
