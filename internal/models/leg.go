package models

// Причины завершения ноги
const (
	LegEndAltitudeStep = "AltitudeStep"
	LegEndAltitudeSum  = "AltitudeSum"
	LegEndYawStep      = "YawStep"
	LegEndYawSum       = "YawSum"
	LegEndPitchStep    = "PitchStep"
	LegEndPitchSum     = "PitchSum"
	LegEndTimeGap      = "TimeGap"
	LegEndNoAltitude   = "NoAltitude"
	LegEndNoYaw        = "NoYaw"
	LegEndFlightEnded  = "FlightEnded"
)

// FlightLeg участок полета с примерно постоянными высотой, курсом и наклоном камеры
type FlightLeg struct {
	TardisSummary
	ID          int     `json:"id"`   // с 1
	Name        string  `json:"name"` // "A", "B", ...
	MinStepID   int     `json:"min_step_id"`
	MaxStepID   int     `json:"max_step_id"`
	WhyLegEnded string  `json:"why_leg_ended"`
	DistanceM   float64 `json:"distance_m"`
}

// ContainsStep входит ли id шага в диапазон ноги
func (l *FlightLeg) ContainsStep(stepID int) bool {
	return stepID >= l.MinStepID && stepID <= l.MaxStepID
}

// FlightLegs набор ног и таблица соответствия шаг -> нога
type FlightLegs struct {
	Legs        []*FlightLeg `json:"legs"`
	Active      bool         `json:"active"`
	WhyInactive string       `json:"why_inactive,omitempty"`

	stepLegIDs map[int]int
}

// NewFlightLegs создает пустой набор
func NewFlightLegs() *FlightLegs {
	return &FlightLegs{stepLegIDs: make(map[int]int)}
}

// Add добавляет ногу и связывает с ней шаги
func (fl *FlightLegs) Add(leg *FlightLeg, stepIDs []int) {
	if fl.stepLegIDs == nil {
		fl.stepLegIDs = make(map[int]int)
	}
	fl.Legs = append(fl.Legs, leg)
	for _, id := range stepIDs {
		fl.stepLegIDs[id] = leg.ID
	}
}

// Count количество ног
func (fl *FlightLegs) Count() int {
	if fl == nil {
		return 0
	}
	return len(fl.Legs)
}

// LegIDOf id ноги шага; 0 если шаг не относится ни к одной ноге
func (fl *FlightLegs) LegIDOf(stepID int) int {
	if fl == nil || fl.stepLegIDs == nil {
		return 0
	}
	return fl.stepLegIDs[stepID]
}

// LegOf нога шага или nil
func (fl *FlightLegs) LegOf(stepID int) *FlightLeg {
	return fl.ByID(fl.LegIDOf(stepID))
}

// ByID нога по id или nil
func (fl *FlightLegs) ByID(id int) *FlightLeg {
	if fl == nil || id <= 0 || id > len(fl.Legs) {
		return nil
	}
	leg := fl.Legs[id-1]
	if leg.ID != id {
		for _, l := range fl.Legs {
			if l.ID == id {
				return l
			}
		}
		return nil
	}
	return leg
}

// TotalDistanceM суммарная длина всех ног
func (fl *FlightLegs) TotalDistanceM() float64 {
	total := 0.0
	if fl == nil {
		return total
	}
	for _, l := range fl.Legs {
		total += l.DistanceM
	}
	return total
}

// ActiveLegs ноги, если они включены
func (fl *FlightLegs) ActiveLegs() []*FlightLeg {
	if fl == nil || !fl.Active {
		return nil
	}
	return fl.Legs
}

// LegName имя ноги по 1-based индексу в стиле столбцов таблицы: 1→A, 26→Z, 27→AA
func LegName(index int) string {
	if index <= 0 {
		return ""
	}
	var letters []byte
	for index > 0 {
		index--
		letters = append([]byte{byte('A' + index%26)}, letters...)
		index /= 26
	}
	return string(letters)
}
