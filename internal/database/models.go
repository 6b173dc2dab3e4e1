package database

import "time"

const (
	TunnelRunning = "running"
	TunnelStopped = "stopped"
)

type Account struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:128" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	APIToken    string    `gorm:"type:text" json:"-"` // Fernet-encrypted
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Domain struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID uint      `gorm:"not null;index" json:"account_id"`
	Domain    string    `gorm:"uniqueIndex;not null;size:255" json:"domain"`
	ZoneID    string    `gorm:"size:32" json:"zone_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Tunnel struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CloudflareID    string     `gorm:"uniqueIndex;not null;size:64" json:"cloudflare_id"`
	Name            string     `gorm:"not null;size:255" json:"name"`
	Domain          string     `gorm:"not null;size:255" json:"domain"`
	Service         string     `gorm:"not null;size:512" json:"service"`
	Status          string     `gorm:"not null;default:stopped;size:16" json:"status"`
	AccountID       uint       `gorm:"not null;index" json:"account_id"`
	DNSWarning      string     `gorm:"type:text" json:"dns_warning,omitempty"`
	NoTLSVerify     bool       `gorm:"not null;default:false" json:"no_tls_verify"`
	IsTemporary     bool       `gorm:"not null;default:false" json:"is_temporary"`
	UptimeStartedAt *time.Time `json:"uptime_started_at"`
	LastActivityAt  *time.Time `json:"last_activity_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name         string    `gorm:"size:255" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllModels lists every table managed by AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{&Account{}, &Domain{}, &Tunnel{}, &Setting{}, &User{}}
}
