package gormstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arbiter/internal/bandit"
	"arbiter/internal/ensemble"
	"arbiter/internal/perf"
	storemodel "arbiter/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// GormStore 用 Gorm + SQLite 承载决策历史、信任后验、否决战绩与平仓记录。
type GormStore struct {
	db *gorm.DB
}

// 编译期确认实现了各领域契约。
var (
	_ ensemble.DecisionStore  = (*GormStore)(nil)
	_ ensemble.VetoStatsStore = (*GormStore)(nil)
	_ bandit.PosteriorStore   = (*GormStore)(nil)
	_ perf.OutcomeStore       = (*GormStore)(nil)
)

// NewGormStore 打开（必要时创建）数据库并迁移表结构。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// DriverName 指向 modernc 的纯 Go 驱动，免 cgo 交叉编译
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.DecisionModel{},
		&storemodel.PosteriorModel{},
		&storemodel.VetoEventModel{},
		&storemodel.OutcomeModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：状态页是并发读方，写方只有代理自己，连接数保持最小。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close 关闭底层数据库连接。
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- 决策历史 -------------------------

func (s *GormStore) SaveDecision(d *ensemble.Decision) error {
	if s == nil || s.db == nil || d == nil {
		return nil
	}
	m, err := decisionToModel(*d)
	if err != nil {
		return err
	}
	return s.db.Create(&m).Error
}

func (s *GormStore) GetDecision(id string) (*ensemble.Decision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var m storemodel.DecisionModel
	if err := s.db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	d := decisionFromModel(m)
	return &d, nil
}

// ListDecisions 倒序返回最近的决策；assetPair 为空表示不过滤。
func (s *GormStore) ListDecisions(assetPair string, limit int) ([]ensemble.Decision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Order("created_at DESC").Limit(limit)
	if assetPair != "" {
		q = q.Where("asset_pair = ?", assetPair)
	}
	var models []storemodel.DecisionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ensemble.Decision, 0, len(models))
	for _, m := range models {
		out = append(out, decisionFromModel(m))
	}
	return out, nil
}

// contributingEntry 落库用的精简版顾问响应，error 不可序列化，存文本。
type contributingEntry struct {
	Provider   string  `json:"provider"`
	Action     string  `json:"action,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	LatencyMs  int64   `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

func decisionToModel(d ensemble.Decision) (storemodel.DecisionModel, error) {
	entries := make([]contributingEntry, 0, len(d.Contributing))
	for _, r := range d.Contributing {
		e := contributingEntry{
			Provider:   r.Provider,
			Action:     string(r.Action),
			Confidence: r.Confidence,
			LatencyMs:  r.LatencyMs,
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		entries = append(entries, e)
	}
	blob, err := json.Marshal(entries)
	if err != nil {
		return storemodel.DecisionModel{}, fmt.Errorf("序列化顾问响应失败: %w", err)
	}
	return storemodel.DecisionModel{
		ID:               d.ID,
		AssetPair:        d.AssetPair,
		Action:           string(d.Action),
		Confidence:       d.Confidence,
		Reasoning:        d.Reasoning,
		PositionSizing:   d.PositionSizing,
		Phase:            string(d.Phase),
		AgreementScore:   d.AgreementScore,
		Regime:           d.Regime,
		VetoedAction:     string(d.VetoedAction),
		VetoedConfidence: d.VetoedConfidence,
		VetoScore:        d.VetoScore,
		ContributingJSON: blob,
		CreatedAtUnix:    d.CreatedAt.Unix(),
	}, nil
}

func decisionFromModel(m storemodel.DecisionModel) ensemble.Decision {
	d := ensemble.Decision{
		ID:               m.ID,
		AssetPair:        m.AssetPair,
		Action:           ensemble.Action(m.Action),
		Confidence:       m.Confidence,
		Reasoning:        m.Reasoning,
		PositionSizing:   m.PositionSizing,
		Phase:            ensemble.Phase(m.Phase),
		AgreementScore:   m.AgreementScore,
		Regime:           m.Regime,
		VetoedAction:     ensemble.Action(m.VetoedAction),
		VetoedConfidence: m.VetoedConfidence,
		VetoScore:        m.VetoScore,
		CreatedAt:        time.Unix(m.CreatedAtUnix, 0),
	}
	var entries []contributingEntry
	if len(m.ContributingJSON) > 0 && json.Unmarshal(m.ContributingJSON, &entries) == nil {
		for _, e := range entries {
			d.Contributing = append(d.Contributing, ensemble.ProviderResponse{
				Provider:   e.Provider,
				Action:     ensemble.Action(e.Action),
				Confidence: e.Confidence,
				LatencyMs:  e.LatencyMs,
			})
		}
	}
	return d
}

// --------------------- 信任后验 -------------------------

func (s *GormStore) LoadPosteriors() ([]bandit.Posterior, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []storemodel.PosteriorModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]bandit.Posterior, 0, len(models))
	for _, m := range models {
		out = append(out, bandit.Posterior{
			Provider:  m.Provider,
			Regime:    m.Regime,
			Alpha:     m.Alpha,
			Beta:      m.Beta,
			UpdatedAt: time.Unix(m.UpdatedAtUnix, 0),
		})
	}
	return out, nil
}

func (s *GormStore) SavePosterior(p bandit.Posterior) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.PosteriorModel{
		Provider:      p.Provider,
		Regime:        p.Regime,
		Alpha:         p.Alpha,
		Beta:          p.Beta,
		UpdatedAtUnix: p.UpdatedAt.Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "regime"}},
		DoUpdates: clause.AssignmentColumns([]string{"alpha", "beta", "updated_at"}),
	}).Create(&m).Error
}

// --------------------- 否决战绩 -------------------------

func (s *GormStore) VetoStats() (ensemble.VetoStats, error) {
	if s == nil || s.db == nil {
		return ensemble.VetoStats{}, fmt.Errorf("gorm store 未初始化")
	}
	var total, correct int64
	if err := s.db.Model(&storemodel.VetoEventModel{}).
		Where("verdict <> ?", storemodel.VetoVerdictPending).
		Count(&total).Error; err != nil {
		return ensemble.VetoStats{}, err
	}
	if err := s.db.Model(&storemodel.VetoEventModel{}).
		Where("verdict = ?", storemodel.VetoVerdictCorrect).
		Count(&correct).Error; err != nil {
		return ensemble.VetoStats{}, err
	}
	return ensemble.VetoStats{Total: int(total), Correct: int(correct)}, nil
}

func (s *GormStore) RecordVeto(assetPair string, score float64, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.VetoEventModel{
		AssetPair:     assetPair,
		Score:         score,
		Verdict:       storemodel.VetoVerdictPending,
		CreatedAtUnix: at.Unix(),
	}
	return s.db.Create(&m).Error
}

// MarkVetoOutcome 把最早一条待判定的否决事件标记为正确/错误。
func (s *GormStore) MarkVetoOutcome(correct bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	verdict := storemodel.VetoVerdictIncorrect
	if correct {
		verdict = storemodel.VetoVerdictCorrect
	}
	var m storemodel.VetoEventModel
	err := s.db.Where("verdict = ?", storemodel.VetoVerdictPending).
		Order("created_at ASC").First(&m).Error
	if err != nil {
		return err
	}
	return s.db.Model(&m).Update("verdict", verdict).Error
}

// --------------------- 平仓记录 -------------------------

func (s *GormStore) SaveOutcome(o perf.TradeOutcome) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.OutcomeModel{
		DecisionID:   o.DecisionID,
		AssetPair:    o.AssetPair,
		PnL:          o.PnL.String(),
		Fee:          o.Fee.String(),
		ExitPrice:    o.ExitPrice.String(),
		Regime:       o.Regime,
		ClosedAtUnix: o.ClosedAt.Unix(),
	}
	// 幂等：同一决策的重复回传保持首次记录不变。
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "decision_id"}},
		DoNothing: true,
	}).Create(&m).Error
}

func (s *GormStore) LoadOutcomes() ([]perf.TradeOutcome, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []storemodel.OutcomeModel
	if err := s.db.Order("closed_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]perf.TradeOutcome, 0, len(models))
	for _, m := range models {
		out = append(out, perf.TradeOutcome{
			DecisionID: m.DecisionID,
			AssetPair:  m.AssetPair,
			PnL:        parseDecimal(m.PnL),
			Fee:        parseDecimal(m.Fee),
			ExitPrice:  parseDecimal(m.ExitPrice),
			Regime:     m.Regime,
			ClosedAt:   time.Unix(m.ClosedAtUnix, 0),
		})
	}
	return out, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
