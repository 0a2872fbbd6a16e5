package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/flybeeper/flightpath/internal/geo"
)

// FlightSection сырая запись лога полета (кадр субтитров, строка CSV или снимок)
type FlightSection struct {
	TardisCore
	Global        *GeoPoint `json:"global,omitempty"`
	MinRawHeat    *int      `json:"min_raw_heat,omitempty"`
	MaxRawHeat    *int      `json:"max_raw_heat,omitempty"`
	ImageFileName string    `json:"image_file_name,omitempty"`
}

// FlightSections упорядоченная по id последовательность секций со сводкой
type FlightSections struct {
	TardisSummary
	Sections   []*FlightSection `json:"sections"`
	Origin     GeoPoint         `json:"origin"`
	Bounds     Bounds           `json:"bounds"`
	HasGlobal  bool             `json:"has_global"`
	FromImages bool             `json:"from_images"`
	GimbalData GimbalDataAvail  `json:"gimbal_data"`
	Source     string           `json:"source"`

	byID map[int]int
}

// AssembleSections общий пост-обработчик результата парсера:
// сортирует по времени, назначает id, вычисляет интервалы, локальные координаты и сводку.
func AssembleSections(raw []*FlightSection, fromImages bool) (*FlightSections, error) {
	sections := make([]*FlightSection, 0, len(raw))
	for _, s := range raw {
		if s != nil {
			sections = append(sections, s)
		}
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no sections to assemble")
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].StartTime < sections[j].StartTime
	})

	// id парсера сохраняются, если они строго возрастают; иначе нумерация по порядку
	increasing := true
	for i := 1; i < len(sections); i++ {
		if sections[i].ID <= sections[i-1].ID {
			increasing = false
			break
		}
	}
	if !increasing || sections[0].ID < 0 {
		for i, s := range sections {
			s.ID = i
		}
	}

	fs := &FlightSections{
		Sections:   sections,
		FromImages: fromImages,
	}

	globals := make([]GeoPoint, 0, len(sections))
	for _, s := range sections {
		if s.Global != nil {
			globals = append(globals, *s.Global)
		}
	}
	if bounds, ok := BoundsOf(globals); ok {
		fs.Bounds = bounds
		fs.Origin = bounds.Southwest
		fs.HasGlobal = true
	}

	var prev *FlightSection
	for _, s := range sections {
		s.Location = nil
		if s.Global != nil {
			loc := s.Global.ToLocal(fs.Origin)
			s.Location = &loc
		}

		s.TimeMs = 0
		s.LinealM = 0
		s.SumLinealM = 0
		if prev != nil {
			s.TimeMs = int((s.StartTime - prev.StartTime) / time.Millisecond)
			if s.Location != nil && prev.Location != nil {
				s.LinealM = geo.Distance(*prev.Location, *s.Location)
			}
			s.SumLinealM = prev.SumLinealM + s.LinealM
		}
		prev = s
	}

	fs.reindex()
	fs.Summarise()

	if err := fs.AssertGood(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FlightSections) reindex() {
	fs.byID = make(map[int]int, len(fs.Sections))
	for i, s := range fs.Sections {
		fs.byID[s.ID] = i
	}
}

// Len количество секций
func (fs *FlightSections) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Sections)
}

// ByID секция по id или nil
func (fs *FlightSections) ByID(id int) *FlightSection {
	if fs.byID == nil {
		fs.reindex()
	}
	if i, ok := fs.byID[id]; ok {
		return fs.Sections[i]
	}
	return nil
}

// Summarise пересчитывает сводку по всем секциям
func (fs *FlightSections) Summarise() {
	fs.TardisSummary.Reset()
	for _, s := range fs.Sections {
		fs.TardisSummary.Summarise(&s.TardisCore)
	}
}

// AssertGood проверяет упорядоченность id и времени
func (fs *FlightSections) AssertGood() error {
	for i, s := range fs.Sections {
		if s.ID < 0 {
			return invariantf("sections.ids", "negative id %d", s.ID)
		}
		if s.TimeMs < 0 {
			return invariantf("sections.time", "section %d has negative interval %d ms", s.ID, s.TimeMs)
		}
		if s.Global != nil {
			if err := s.Global.Validate(); err != nil {
				return invariantf("sections.location", "section %d: %v", s.ID, err)
			}
		}
		if i == 0 {
			continue
		}
		p := fs.Sections[i-1]
		if s.ID <= p.ID {
			return invariantf("sections.ids", "id %d follows id %d", s.ID, p.ID)
		}
		if s.StartTime < p.StartTime {
			return invariantf("sections.time", "section %d starts before section %d", s.ID, p.ID)
		}
	}
	return nil
}

// FlightKey стабильный ключ полета: geohash начала + время первой секции
func (fs *FlightSections) FlightKey() string {
	hash := "nogps"
	if fs.HasGlobal {
		hash = fs.Origin.Geohash(8)
	}
	first := 0
	if len(fs.Sections) > 0 {
		first = fs.Sections[0].StartTimeMs()
	}
	return fmt.Sprintf("%s-%d-%d", hash, first, len(fs.Sections))
}
