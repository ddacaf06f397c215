package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

// Fleet-wide placeholders reported until per-tank consumption telemetry
// exists. The dashboard treats them as estimates.
const (
	defaultAvgDailyConsumption = 500.0
	defaultNextRefillETAHours  = 2.0
)

// TankService owns tank CRUD and the derived read views (KPIs, alerts,
// monthly usage, reports). All derivations are recomputed per call from the
// current tank rows; nothing derived is persisted.
type TankService struct {
	DB *gorm.DB
}

func NewTankService(db *gorm.DB) *TankService {
	return &TankService{DB: db}
}

// KPIs is the dashboard summary block.
type KPIs struct {
	TotalWaterStored      float64 `json:"totalWaterStored"`
	TotalCapacity         float64 `json:"totalCapacity"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
	CommunityTanks        int     `json:"communityTanks"`
	AvgDailyConsumption   float64 `json:"avgDailyConsumption"`
	NextRefillETA         float64 `json:"nextRefillETA"`
	CriticalTankCount     int     `json:"criticalTankCount"`
	LowTankCount          int     `json:"lowTankCount"`
}

// Alert is a derived, non-persisted warning row.
type Alert struct {
	TankID    string    `json:"tankId"`
	TankName  string    `json:"tankName"`
	Type      string    `json:"type"`     // critical | warning | info
	Severity  string    `json:"severity"` // high | medium | low
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MonthUsage is one bar of the 12-month usage estimate.
type MonthUsage struct {
	Month string `json:"month"`
	Usage int    `json:"usage"`
}

// Report bundles every derived view for a single export call.
type Report struct {
	GeneratedAt  time.Time    `json:"generatedAt"`
	KPIs         KPIs         `json:"kpis"`
	Alerts       []Alert      `json:"alerts"`
	MonthlyUsage []MonthUsage `json:"monthlyUsage"`
	Tanks        []domain.Tank `json:"tanks"`
}

// CreateTankInput carries the POST /tanks payload.
type CreateTankInput struct {
	Name         string  `json:"name"`
	Capacity     float64 `json:"capacity"`
	CurrentLevel float64 `json:"currentLevel"`
	Location     string  `json:"location"`
	SensorOnline bool    `json:"sensorConnected"`
}

// UpdateTankInput carries the PUT /tanks/:id payload; nil fields are left
// untouched.
type UpdateTankInput struct {
	Name         *string  `json:"name"`
	Capacity     *float64 `json:"capacity"`
	CurrentLevel *float64 `json:"currentLevel"`
	Location     *string  `json:"location"`
	SensorOnline *bool    `json:"sensorConnected"`
}

// list scopes to the owner when one is known; an empty userID means the
// unauthenticated community view over every tank.
func (s *TankService) list(ctx context.Context, userID string) ([]domain.Tank, error) {
	if userID == "" {
		return repo.ListAllTanks(ctx, s.DB)
	}
	return repo.ListTanks(ctx, s.DB, userID)
}

// List returns the caller's tanks in creation order.
func (s *TankService) List(ctx context.Context, userID string) ([]domain.Tank, error) {
	return s.list(ctx, userID)
}

// Create validates and inserts a tank for userID.
func (s *TankService) Create(ctx context.Context, userID string, in CreateTankInput) (*domain.Tank, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}
	if in.Capacity <= 0 {
		return nil, invalid("capacity", "must be positive")
	}
	if in.CurrentLevel < 0 || in.CurrentLevel > in.Capacity {
		return nil, invalid("currentLevel", "must be between 0 and capacity")
	}
	return repo.CreateTank(ctx, s.DB, &domain.Tank{
		UserID:       userID,
		Name:         name,
		Capacity:     in.Capacity,
		CurrentLevel: in.CurrentLevel,
		Location:     strings.TrimSpace(in.Location),
		SensorOnline: in.SensorOnline,
	})
}

// Update applies the non-nil fields of in to the caller's tank.
func (s *TankService) Update(ctx context.Context, userID, id string, in UpdateTankInput) (*domain.Tank, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name", "required")
		}
		updates["name"] = name
	}
	if in.Capacity != nil {
		if *in.Capacity <= 0 {
			return nil, invalid("capacity", "must be positive")
		}
		updates["capacity"] = *in.Capacity
	}
	if in.CurrentLevel != nil {
		if *in.CurrentLevel < 0 {
			return nil, invalid("currentLevel", "must not be negative")
		}
		updates["current_level"] = *in.CurrentLevel
	}
	if in.Location != nil {
		updates["location"] = strings.TrimSpace(*in.Location)
	}
	if in.SensorOnline != nil {
		updates["sensor_online"] = *in.SensorOnline
	}
	if len(updates) == 0 {
		return repo.GetTank(ctx, s.DB, id, userID)
	}
	if err := repo.UpdateTank(ctx, s.DB, id, userID, updates); err != nil {
		return nil, err
	}
	return repo.GetTank(ctx, s.DB, id, userID)
}

// Get fetches one owned tank.
func (s *TankService) Get(ctx context.Context, userID, id string) (*domain.Tank, error) {
	return repo.GetTank(ctx, s.DB, id, userID)
}

// KPIs computes the dashboard summary. Utilization guards the zero-capacity
// fleet, and the critical/low counts are disjoint: a tank is counted once,
// under its classified state.
func (s *TankService) KPIs(ctx context.Context, userID string) (*KPIs, error) {
	tanks, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return computeKPIs(tanks), nil
}

func computeKPIs(tanks []domain.Tank) *KPIs {
	k := &KPIs{
		CommunityTanks:      len(tanks),
		AvgDailyConsumption: defaultAvgDailyConsumption,
		NextRefillETA:       defaultNextRefillETAHours,
	}
	for _, t := range tanks {
		k.TotalWaterStored += t.CurrentLevel
		k.TotalCapacity += t.Capacity
		switch t.Status() {
		case domain.LevelCritical:
			k.CriticalTankCount++
		case domain.LevelLow:
			k.LowTankCount++
		}
	}
	if k.TotalCapacity > 0 {
		k.UtilizationPercentage = k.TotalWaterStored / k.TotalCapacity * 100
	}
	return k
}

var severityRank = map[string]int{"high": 3, "medium": 2, "low": 1}

// Alerts derives the current alert list: level alerts from the canonical
// classifier plus an info row per offline sensor. High severity sorts
// first; within a severity, newer timestamps first.
func (s *TankService) Alerts(ctx context.Context, userID string) ([]Alert, error) {
	tanks, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return deriveAlerts(tanks, time.Now().UTC()), nil
}

func deriveAlerts(tanks []domain.Tank, now time.Time) []Alert {
	alerts := make([]Alert, 0, len(tanks))
	for _, t := range tanks {
		ts := t.UpdatedAt
		if ts.IsZero() {
			ts = now
		}
		switch t.Status() {
		case domain.LevelCritical:
			alerts = append(alerts, Alert{
				TankID: t.ID, TankName: t.Name,
				Type: "critical", Severity: "high",
				Title:   "Critical water level",
				Message: t.Name + " is at or below 10% of capacity",
				Timestamp: ts,
			})
		case domain.LevelLow:
			alerts = append(alerts, Alert{
				TankID: t.ID, TankName: t.Name,
				Type: "warning", Severity: "medium",
				Title:   "Low water level",
				Message: t.Name + " is at or below 30% of capacity",
				Timestamp: ts,
			})
		}
		if !t.SensorOnline {
			alerts = append(alerts, Alert{
				TankID: t.ID, TankName: t.Name,
				Type: "info", Severity: "low",
				Title:   "Sensor disconnected",
				Message: t.Name + " is not reporting level data",
				Timestamp: ts,
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := severityRank[alerts[i].Severity], severityRank[alerts[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts
}

// MonthlyUsage estimates twelve months of consumption ending with the
// current month. The shape is a sine wave over a baseline of the stored
// total (10000 L when the fleet is empty); a real implementation would
// aggregate level telemetry instead.
func (s *TankService) MonthlyUsage(ctx context.Context, userID string) ([]MonthUsage, error) {
	tanks, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return estimateMonthlyUsage(tanks, time.Now()), nil
}

func estimateMonthlyUsage(tanks []domain.Tank, now time.Time) []MonthUsage {
	var baseline float64
	for _, t := range tanks {
		baseline += t.CurrentLevel
	}
	if baseline == 0 {
		baseline = 10000
	}
	out := make([]MonthUsage, 0, 12)
	for i := 0; i < 12; i++ {
		d := time.Date(now.Year(), now.Month()-time.Month(11-i), 1, 0, 0, 0, 0, time.UTC)
		usage := math.Round(baseline/50 + 800*math.Sin(float64(i)/2))
		if usage < 100 {
			usage = 100
		}
		out = append(out, MonthUsage{Month: d.Format("Jan"), Usage: int(usage)})
	}
	return out
}

// Report assembles every derived view at once.
func (s *TankService) Report(ctx context.Context, userID string) (*Report, error) {
	tanks, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Report{
		GeneratedAt:  now,
		KPIs:         *computeKPIs(tanks),
		Alerts:       deriveAlerts(tanks, now),
		MonthlyUsage: estimateMonthlyUsage(tanks, now),
		Tanks:        tanks,
	}, nil
}
