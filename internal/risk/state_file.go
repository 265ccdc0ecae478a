package risk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sniper/internal/models"
)

// state_file.go - атомарная персистентность состояния RiskManager
//
// Состояние пишется после каждой мутации по схеме temp + rename:
// частично записанный файл никогда не подменяет валидный. Повреждённый
// или отсутствующий файл при старте не фатален - менеджер стартует
// с начального капитала.

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State - единственная персистируемая запись RiskManager.
// Мутируется только через API менеджера под его мьютексом.
type State struct {
	Capital           float64                        `json:"capital"`
	PeakCapital       float64                        `json:"peak_capital"`
	DayStartCapital   float64                        `json:"day_start_capital"`
	DailyPnl          float64                        `json:"daily_pnl"`
	DailyTrades       int                            `json:"daily_trade_count"`
	DailyWins         int                            `json:"daily_wins"`
	DailyLosses       int                            `json:"daily_losses"`
	LastResetDate     string                         `json:"last_reset_date"` // YYYY-MM-DD
	ConsecutiveLosses int                            `json:"consecutive_losses"`
	BreakerState      string                         `json:"circuit_breaker_state"`
	RiskLevel         string                         `json:"risk_level"`
	OpenPositions     map[string]models.OpenPosition `json:"open_positions"`
	CooldownUntil     *time.Time                     `json:"cooldown_until,omitempty"`
}

// newState создает начальное состояние для заданного капитала
func newState(capital float64, today string) *State {
	return &State{
		Capital:         capital,
		PeakCapital:     capital,
		DayStartCapital: capital,
		LastResetDate:   today,
		BreakerState:    BreakerClosed,
		RiskLevel:       LevelNormal,
		OpenPositions:   make(map[string]models.OpenPosition),
	}
}

// Drawdown возвращает текущую просадку от пика в долях [0..1]
func (s *State) Drawdown() float64 {
	if s.PeakCapital <= 0 {
		return 0
	}
	dd := (s.PeakCapital - s.Capital) / s.PeakCapital
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyLossFraction возвращает дневной реализованный убыток как долю
// от капитала на начало дня (0 если день в плюсе)
func (s *State) DailyLossFraction() float64 {
	if s.DayStartCapital <= 0 || s.DailyPnl >= 0 {
		return 0
	}
	return -s.DailyPnl / s.DayStartCapital
}

// stateStore читает и пишет файл состояния
type stateStore struct {
	path string
}

func newStateStore(path string) *stateStore {
	return &stateStore{path: path}
}

// Load читает состояние с диска.
// Возвращает ошибку если файл отсутствует или повреждён - вызывающий
// решает, стартовать ли с чистого состояния.
func (st *stateStore) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	// Минимальная валидация: повреждённое состояние хуже отсутствующего
	if state.Capital <= 0 || state.BreakerState == "" {
		return nil, fmt.Errorf("state file is corrupt: capital=%f breaker=%q", state.Capital, state.BreakerState)
	}
	if state.OpenPositions == nil {
		state.OpenPositions = make(map[string]models.OpenPosition)
	}
	if state.RiskLevel == "" {
		state.RiskLevel = LevelNormal
	}
	return &state, nil
}

// Save атомарно записывает состояние: temp файл в том же каталоге + rename
func (st *stateStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, ".risk_state_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, st.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
