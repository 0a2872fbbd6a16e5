package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flybeeper/flightpath/internal/config"
	"github.com/flybeeper/flightpath/internal/filter"
	"github.com/flybeeper/flightpath/internal/models"
	"github.com/flybeeper/flightpath/internal/repository"
)

// Порядок строк KindSummary
const (
	sectionsSummaryRow = iota
	stepsSummaryRow
)

func settingsRows[T models.Settable](items []T) [][]models.Setting {
	rows := make([][]models.Setting, len(items))
	for i, item := range items {
		rows[i] = item.GetSettings()
	}
	return rows
}

// Persist сохраняет настройки секций, шагов, ног и сводок текущего запуска
func (d *Drone) Persist(ctx context.Context, store repository.SettingsStore) error {
	state := d.Snapshot()
	if !state.HasData() {
		return ErrNoFlightData
	}
	start := time.Now()

	cfg, err := json.Marshal(state.Config)
	if err != nil {
		return fmt.Errorf("failed to encode flight config: %w", err)
	}

	run := &repository.RunRecord{
		ID:          state.RunID,
		FlightKey:   state.Sections.FlightKey(),
		Source:      state.Source,
		FromImages:  state.FromImages,
		GimbalData:  state.Sections.GimbalData.String(),
		Sections:    state.Sections.Len(),
		Legs:        state.Legs.Count(),
		LegsActive:  state.Legs.Active,
		WhyInactive: state.Legs.WhyInactive,
		Config:      string(cfg),
		CreatedAt:   state.ComputedAt,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	entities := []struct {
		kind repository.EntityKind
		rows [][]models.Setting
	}{
		{repository.KindSection, settingsRows(state.Sections.Sections)},
		{repository.KindStep, settingsRows(state.Steps.Steps)},
		{repository.KindLeg, settingsRows(state.Legs.Legs)},
		{repository.KindSummary, [][]models.Setting{
			sectionsSummaryRow: state.Sections.TardisSummary.GetSettings(),
			stepsSummaryRow:    state.Steps.TardisSummary.GetSettings(),
		}},
	}
	for _, e := range entities {
		if err := store.SaveEntities(ctx, run.ID, e.kind, e.rows); err != nil {
			return fmt.Errorf("failed to save %s settings: %w", e.kind, err)
		}
	}

	d.logger.WithField("run_id", run.ID).
		WithField("sections", run.Sections).
		WithField("legs", run.Legs).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Flight run persisted")
	return nil
}

// Restore загружает сохраненный запуск и публикует его без пересчета.
// Восстановленные шаги проверяются на соответствие сохраненной сводке.
func (d *Drone) Restore(ctx context.Context, store repository.SettingsStore, runID string) error {
	run, err := store.LoadRun(ctx, runID)
	if err != nil {
		return err
	}

	cfg := config.DefaultFlightConfig()
	if err := json.Unmarshal([]byte(run.Config), &cfg); err != nil {
		return fmt.Errorf("failed to decode flight config of run %s: %w", runID, err)
	}
	gimbal, err := models.ParseGimbalDataAvail(run.GimbalData)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	sections, err := restoreSections(ctx, store, run)
	if err != nil {
		return err
	}
	sections.GimbalData = gimbal

	steps, err := restoreSteps(ctx, store, runID)
	if err != nil {
		return err
	}
	if steps.Len() != sections.Len() {
		return fmt.Errorf("run %s: %d steps for %d sections", runID, steps.Len(), sections.Len())
	}

	summaries, err := store.LoadEntities(ctx, runID, repository.KindSummary)
	if err != nil {
		return err
	}
	if len(summaries) > stepsSummaryRow {
		var saved models.TardisSummary
		if err := saved.LoadSettings(summaries[stepsSummaryRow]); err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		if err := steps.AssertGoodSubset(&saved, true); err != nil {
			return fmt.Errorf("restored steps of run %s: %w", runID, err)
		}
	}

	legs, err := restoreLegs(ctx, store, run, steps)
	if err != nil {
		return err
	}

	state := &State{
		RunID:      run.ID,
		Config:     cfg,
		Settings:   filter.SettingsFrom(cfg, gimbal),
		Sections:   sections,
		Steps:      steps,
		Legs:       legs,
		OnGroundAt: cfg.OnGroundAt,
		FixStartM:  steps.Steps[0].FixAltM,
		FixEndM:    steps.Steps[steps.Len()-1].FixAltM,
		Source:     run.Source,
		FromImages: run.FromImages,
		ComputedAt: run.CreatedAt,
		index:      buildSpatialIndex(steps),
	}

	d.recomputeMu.Lock()
	defer d.recomputeMu.Unlock()
	d.mu.Lock()
	d.cfg = cfg
	d.state = state
	d.mu.Unlock()

	d.logger.WithField("run_id", run.ID).
		WithField("sections", sections.Len()).
		WithField("legs", legs.Count()).
		Info("Flight run restored")
	return nil
}

func restoreSections(ctx context.Context, store repository.SettingsStore, run *repository.RunRecord) (*models.FlightSections, error) {
	rows, err := store.LoadEntities(ctx, run.ID, repository.KindSection)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("run %s has no sections: %w", run.ID, repository.ErrNotFound)
	}

	raw := make([]*models.FlightSection, len(rows))
	for i, values := range rows {
		s := &models.FlightSection{}
		if err := s.LoadSettings(values); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		raw[i] = s
	}

	sections, err := models.AssembleSections(raw, run.FromImages)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	sections.Source = run.Source
	return sections, nil
}

func restoreSteps(ctx context.Context, store repository.SettingsStore, runID string) (*models.FlightSteps, error) {
	rows, err := store.LoadEntities(ctx, runID, repository.KindStep)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.FlightStep, len(rows))
	for i, values := range rows {
		s := &models.FlightStep{}
		if err := s.LoadSettings(values); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		steps[i] = s
	}
	return models.NewFlightSteps(steps), nil
}

func restoreLegs(ctx context.Context, store repository.SettingsStore, run *repository.RunRecord, steps *models.FlightSteps) (*models.FlightLegs, error) {
	rows, err := store.LoadEntities(ctx, run.ID, repository.KindLeg)
	if err != nil {
		return nil, err
	}

	legs := models.NewFlightLegs()
	legs.Active = run.LegsActive
	legs.WhyInactive = run.WhyInactive
	for _, values := range rows {
		leg := &models.FlightLeg{}
		if err := leg.LoadSettings(values); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		var ids []int
		for _, s := range steps.Steps {
			if leg.ContainsStep(s.ID) {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("run %s: leg %s has no steps", run.ID, leg.Name)
		}
		legs.Add(leg, ids)
	}
	return legs, nil
}
