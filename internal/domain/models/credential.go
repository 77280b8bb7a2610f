package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential types understood by the database locator.
const (
	CredentialTypeAPIKey   = "api_key"
	CredentialTypeBasic    = "basic"
	CredentialTypeBearer   = "bearer"
	CredentialTypePostgres = "postgres"
	CredentialTypeMySQL    = "mysql"
	CredentialTypeMongoDB  = "mongodb"
)

type Credential struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;index;not null" json:"workspace_id"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Type        string         `gorm:"size:50;not null;index" json:"type"`
	Data        string         `gorm:"type:text;not null" json:"-"` // XChaCha20-Poly1305 sealed CredentialData
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	LastUsedAt  *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Credential) TableName() string {
	return "credentials"
}

// IsDatabase reports whether the credential describes a database connection.
func (c *Credential) IsDatabase() bool {
	switch c.Type {
	case CredentialTypePostgres, CredentialTypeMySQL, CredentialTypeMongoDB:
		return true
	}
	return false
}

// CredentialData represents the decrypted credential data structure
type CredentialData struct {
	APIKey string `json:"api_key,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	Token string `json:"token,omitempty"`

	// Database connections
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Database string            `json:"database,omitempty"`
	Options  map[string]string `json:"options,omitempty"`

	// Connection string (for MongoDB etc.)
	ConnectionString string `json:"connectionString,omitempty"`

	Custom map[string]string `json:"custom,omitempty"`
}

// Field returns a named field of the decrypted data, looking at Custom last.
func (d *CredentialData) Field(name string) (string, bool) {
	var v string
	switch name {
	case "api_key":
		v = d.APIKey
	case "username":
		v = d.Username
	case "password":
		v = d.Password
	case "token":
		v = d.Token
	case "host":
		v = d.Host
	case "database":
		v = d.Database
	case "connectionString", "connection_string":
		v = d.ConnectionString
	default:
		v, ok := d.Custom[name]
		return v, ok
	}
	return v, v != ""
}

// Variable is a workspace-level value referenced as ${value:NAME}.
type Variable struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_variable_workspace_name" json:"workspace_id"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	Name        string         `gorm:"size:100;not null;uniqueIndex:idx_variable_workspace_name" json:"name"`
	Value       string         `gorm:"type:text;not null" json:"-"`    // sealed when IsSecret
	IsSecret    bool           `gorm:"default:false" json:"is_secret"` // If true, mask in logs
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Variable) TableName() string {
	return "variables"
}

var variableName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ValidVariableName reports whether name can be used in a ${value:NAME} reference.
func ValidVariableName(name string) bool {
	return variableName.MatchString(name)
}
