// Package store persists fleetmon's targets, administrators, alert settings,
// and SMTP credentials in a local SQLite database.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleetmon/internal/channels"
	"fleetmon/internal/models"
)

// TargetRecord is the persisted form of a monitored target.
type TargetRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      int       `gorm:"index" json:"tenant_id"`
	DisplayName   string    `json:"display_name"`
	Kind          string    `json:"kind"`
	Endpoint      string    `json:"endpoint"`
	CapacityLimit int       `json:"capacity_limit"`
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	GroupKey      string    `json:"group_key"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AdminRecord is an administrator account. Admins authenticate against the
// API and subscribe to fleet alerts unless they opt out per channel.
type AdminRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     int       `gorm:"index" json:"tenant_id"`
	Username     string    `gorm:"uniqueIndex" json:"username"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	SMSOptOut    bool      `json:"sms_opt_out"`
	EmailOptOut  bool      `json:"email_opt_out"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SMTPAccountRecord stores one admin's outbound mail credentials.
type SMTPAccountRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AdminID     int       `gorm:"uniqueIndex" json:"admin_id"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Secure      string    `json:"secure"`
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	FromAddress string    `json:"from_address"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AlertSettingRecord is the per-tenant alert switch and contact points.
type AlertSettingRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   int       `gorm:"uniqueIndex" json:"tenant_id"`
	Enabled    bool      `gorm:"default:true" json:"enabled"`
	AlertPhone string    `json:"alert_phone"`
	AlertEmail string    `json:"alert_email"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store wraps the database handle. It implements the monitor's TargetSource
// and RecipientSource.
type Store struct {
	db *gorm.DB
}

// Open initializes the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&TargetRecord{},
		&AdminRecord{},
		&SMTPAccountRecord{},
		&AlertSettingRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- targets ---

// ListEnabledTargets returns the tenant's enabled targets ordered by id.
func (s *Store) ListEnabledTargets(tenantID int) ([]models.Target, error) {
	var records []TargetRecord
	err := s.db.Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("id").Find(&records).Error
	if err != nil {
		return nil, err
	}
	targets := make([]models.Target, 0, len(records))
	for _, rec := range records {
		targets = append(targets, rec.toModel())
	}
	return targets, nil
}

// ListTargets returns all of the tenant's targets, enabled or not.
func (s *Store) ListTargets(tenantID int) ([]models.Target, error) {
	var records []TargetRecord
	if err := s.db.Where("tenant_id = ?", tenantID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	targets := make([]models.Target, 0, len(records))
	for _, rec := range records {
		targets = append(targets, rec.toModel())
	}
	return targets, nil
}

// GetTarget fetches one target scoped to the tenant.
func (s *Store) GetTarget(tenantID, targetID int) (*models.Target, error) {
	var rec TargetRecord
	err := s.db.Where("tenant_id = ? AND id = ?", tenantID, targetID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	target := rec.toModel()
	return &target, nil
}

// CreateTarget inserts a new target and returns it with its assigned id.
func (s *Store) CreateTarget(target models.Target) (models.Target, error) {
	rec := targetRecordFrom(target)
	rec.ID = 0
	if err := s.db.Create(&rec).Error; err != nil {
		return models.Target{}, err
	}
	return rec.toModel(), nil
}

// UpdateTarget rewrites an existing target, scoped to its tenant.
func (s *Store) UpdateTarget(target models.Target) error {
	rec := targetRecordFrom(target)
	result := s.db.Model(&TargetRecord{}).
		Where("tenant_id = ? AND id = ?", target.TenantID, target.ID).
		Select("display_name", "kind", "endpoint", "capacity_limit", "enabled", "group_key").
		Updates(&rec)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTarget removes a target, scoped to its tenant.
func (s *Store) DeleteTarget(tenantID, targetID int) error {
	result := s.db.Where("tenant_id = ? AND id = ?", tenantID, targetID).Delete(&TargetRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r TargetRecord) toModel() models.Target {
	return models.Target{
		ID:            int(r.ID),
		TenantID:      r.TenantID,
		DisplayName:   r.DisplayName,
		Kind:          models.TargetKind(r.Kind),
		Endpoint:      r.Endpoint,
		CapacityLimit: r.CapacityLimit,
		Enabled:       r.Enabled,
		GroupKey:      r.GroupKey,
	}
}

func targetRecordFrom(t models.Target) TargetRecord {
	return TargetRecord{
		ID:            uint(t.ID),
		TenantID:      t.TenantID,
		DisplayName:   t.DisplayName,
		Kind:          string(t.Kind),
		Endpoint:      t.Endpoint,
		CapacityLimit: t.CapacityLimit,
		Enabled:       t.Enabled,
		GroupKey:      t.GroupKey,
	}
}

// --- admins and recipients ---

// ListRecipients returns the tenant's administrators as alert recipients.
func (s *Store) ListRecipients(tenantID int) ([]models.Recipient, error) {
	var records []AdminRecord
	if err := s.db.Where("tenant_id = ?", tenantID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	recipients := make([]models.Recipient, 0, len(records))
	for _, rec := range records {
		recipients = append(recipients, models.Recipient{
			AdminID:     int(rec.ID),
			TenantID:    rec.TenantID,
			Username:    rec.Username,
			SMSOptOut:   rec.SMSOptOut,
			EmailOptOut: rec.EmailOptOut,
			Phone:       rec.Phone,
			Email:       rec.Email,
		})
	}
	return recipients, nil
}

// GetAdminByUsername fetches an admin for authentication.
func (s *Store) GetAdminByUsername(username string) (*AdminRecord, error) {
	var rec AdminRecord
	err := s.db.Where("username = ?", username).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateAdmin inserts an administrator with a bcrypt-hashed password.
func (s *Store) CreateAdmin(tenantID int, username, password, phone, email string) (*AdminRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	rec := AdminRecord{
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(phone),
		Email:        strings.TrimSpace(email),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetAdminPassword replaces an admin's password hash.
func (s *Store) SetAdminPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	result := s.db.Model(&AdminRecord{}).
		Where("username = ?", username).
		Update("password_hash", string(hash))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckPassword verifies a candidate password against the admin's hash.
func (s *Store) CheckPassword(rec *AdminRecord, password string) bool {
	if rec == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil
}

// SetOptOut flips one admin's opt-out flag for a channel.
func (s *Store) SetOptOut(adminID int, channel models.Channel, optOut bool) error {
	var column string
	switch channel {
	case models.ChannelSMS:
		column = "sms_opt_out"
	case models.ChannelEmail:
		column = "email_opt_out"
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
	result := s.db.Model(&AdminRecord{}).Where("id = ?", adminID).Update(column, optOut)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAdmins reports how many administrators exist (used for first-run setup).
func (s *Store) CountAdmins() (int64, error) {
	var count int64
	err := s.db.Model(&AdminRecord{}).Count(&count).Error
	return count, err
}

// --- SMTP accounts ---

// SMTPAccountFor returns the admin's mail credentials. A missing row yields a
// zero account, which the mailer reports as unconfigured.
func (s *Store) SMTPAccountFor(adminID int) (channels.SMTPAccount, error) {
	var rec SMTPAccountRecord
	err := s.db.Where("admin_id = ?", adminID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return channels.SMTPAccount{}, nil
	}
	if err != nil {
		return channels.SMTPAccount{}, err
	}
	return channels.SMTPAccount{
		Host:        rec.Host,
		Port:        rec.Port,
		Secure:      rec.Secure,
		Username:    rec.Username,
		Password:    rec.Password,
		FromAddress: rec.FromAddress,
		DisplayName: rec.DisplayName,
	}, nil
}

// SaveSMTPAccount creates or replaces the admin's mail credentials.
func (s *Store) SaveSMTPAccount(adminID int, account channels.SMTPAccount) error {
	rec := SMTPAccountRecord{
		AdminID:     adminID,
		Host:        account.Host,
		Port:        account.Port,
		Secure:      account.Secure,
		Username:    account.Username,
		Password:    account.Password,
		FromAddress: account.FromAddress,
		DisplayName: account.DisplayName,
	}
	var existing SMTPAccountRecord
	err := s.db.Where("admin_id = ?", adminID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&rec).Error
	}
	if err != nil {
		return err
	}
	rec.ID = existing.ID
	return s.db.Save(&rec).Error
}

// --- alert settings ---

// AlertSetting returns the tenant's alert configuration, or nil when none has
// been stored yet (alerts default to enabled).
func (s *Store) AlertSetting(tenantID int) (*models.AlertSetting, error) {
	var rec AlertSettingRecord
	err := s.db.Where("tenant_id = ?", tenantID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.AlertSetting{
		TenantID:   rec.TenantID,
		Enabled:    rec.Enabled,
		AlertPhone: rec.AlertPhone,
		AlertEmail: rec.AlertEmail,
	}, nil
}

// SaveAlertSetting creates or replaces the tenant's alert configuration.
func (s *Store) SaveAlertSetting(setting models.AlertSetting) error {
	rec := AlertSettingRecord{
		TenantID:   setting.TenantID,
		Enabled:    setting.Enabled,
		AlertPhone: setting.AlertPhone,
		AlertEmail: setting.AlertEmail,
	}
	var existing AlertSettingRecord
	err := s.db.Where("tenant_id = ?", setting.TenantID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&rec).Error
	}
	if err != nil {
		return err
	}
	rec.ID = existing.ID
	return s.db.Save(&rec).Error
}
