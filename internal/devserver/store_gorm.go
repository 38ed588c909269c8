package devserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// SessionRecord chat_sessions 表
type SessionRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	PatientID   string    `gorm:"size:64;index;not null"`
	DoctorID    *string   `gorm:"size:64;index"`
	Status      string    `gorm:"size:16;not null"`
	Title       string    `gorm:"size:255"`
	PatientName *string   `gorm:"size:255"`
	LastMessage *string   `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;index"`
}

func (SessionRecord) TableName() string { return "chat_sessions" }

// MessageRecord chat_messages 表
type MessageRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	SessionID  string    `gorm:"size:64;index:idx_messages_session_created,priority:1;not null"`
	SenderID   *string   `gorm:"size:64"`
	SenderName *string   `gorm:"size:255"`
	Content    string    `gorm:"type:text"`
	IsAI       bool
	IsVoice    bool
	AudioURL   *string   `gorm:"size:512"`
	ImageURL   *string   `gorm:"size:512"`
	CreatedAt  time.Time `gorm:"index:idx_messages_session_created,priority:2"`
}

func (MessageRecord) TableName() string { return "chat_messages" }

// GormStore Postgres 实现
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// DSN 构建 Postgres 连接串
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port,
	)
}

// OpenDB 连接数据库并启用 OpenTelemetry 插件
func OpenDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Use(gormtracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("gorm tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionRecord{}, &MessageRecord{})
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GormStore{db: db, logger: logger}
}

func (s *GormStore) CreateSession(ctx context.Context, session models.ChatSession) error {
	rec := sessionToRecord(session)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, id string) (models.ChatSession, error) {
	var rec SessionRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChatSession{}, ErrNotFound
		}
		return models.ChatSession{}, err
	}
	return recordToSession(rec), nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) (models.ChatSession, error) {
	res := s.db.WithContext(ctx).Model(&SessionRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": string(status), "updated_at": time.Now()})
	if res.Error != nil {
		return models.ChatSession{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.ChatSession{}, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

func (s *GormStore) SessionsFor(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var recs []SessionRecord
	err := s.db.WithContext(ctx).
		Where("patient_id = ? OR doctor_id = ?", userID, userID).
		Order("updated_at DESC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.ChatSession, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToSession(rec))
	}
	return out, nil
}

func (s *GormStore) AddMessage(ctx context.Context, m models.ChatMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		preview := m.Preview()
		res := tx.Model(&SessionRecord{}).Where("id = ?", m.SessionID).
			Updates(map[string]interface{}{"last_message": preview, "updated_at": m.CreatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		rec := messageToRecord(m)
		return tx.Create(&rec).Error
	})
}

func (s *GormStore) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.ChatMessage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToMessage(rec))
	}
	return out, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sessionToRecord(s models.ChatSession) SessionRecord {
	return SessionRecord{
		ID:          s.ID,
		PatientID:   s.PatientID,
		DoctorID:    s.DoctorID,
		Status:      string(s.Status),
		Title:       s.Title,
		PatientName: s.PatientName,
		LastMessage: s.LastMessage,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func recordToSession(r SessionRecord) models.ChatSession {
	status := models.SessionStatus(r.Status)
	return models.ChatSession{
		ID:          r.ID,
		PatientID:   r.PatientID,
		DoctorID:    r.DoctorID,
		Status:      status,
		Title:       r.Title,
		IsRequest:   status == models.StatusRequested,
		PatientName: r.PatientName,
		LastMessage: r.LastMessage,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func messageToRecord(m models.ChatMessage) MessageRecord {
	return MessageRecord{
		ID:         m.ID,
		SessionID:  m.SessionID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		IsAI:       m.IsAI,
		IsVoice:    m.IsVoice,
		AudioURL:   m.AudioURL,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
	}
}

func recordToMessage(r MessageRecord) models.ChatMessage {
	return models.ChatMessage{
		ID:         r.ID,
		SessionID:  r.SessionID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Content:    r.Content,
		IsAI:       r.IsAI,
		IsVoice:    r.IsVoice,
		AudioURL:   r.AudioURL,
		ImageURL:   r.ImageURL,
		CreatedAt:  r.CreatedAt,
	}
}
