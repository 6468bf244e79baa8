package models

import (
	"time"

	"github.com/storesync/backend/internal/domain/integration"
)

// StoreModel is the persistence model for the StoreProfile domain entity.
// ConsumerSecret holds the sealed form when a secret key is configured.
type StoreModel struct {
	BaseModel
	Name           string                  `gorm:"type:varchar(200);not null"`
	BaseURL        string                  `gorm:"type:varchar(500);not null"`
	ConsumerKey    string                  `gorm:"type:varchar(255);not null"`
	ConsumerSecret string                  `gorm:"type:text;not null"`
	Status         integration.StoreStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	LastSyncAt     *time.Time
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a domain StoreProfile.
// The consumer secret is copied as stored.
func (m *StoreModel) ToDomain() *integration.StoreProfile {
	return &integration.StoreProfile{
		BaseEntity:     m.entity(),
		Name:           m.Name,
		BaseURL:        m.BaseURL,
		ConsumerKey:    m.ConsumerKey,
		ConsumerSecret: m.ConsumerSecret,
		Status:         m.Status,
		LastSyncAt:     m.LastSyncAt,
	}
}

// FromDomain populates the persistence model from a domain StoreProfile
func (m *StoreModel) FromDomain(s *integration.StoreProfile) {
	m.BaseModel = baseModelOf(s.BaseEntity)
	m.Name = s.Name
	m.BaseURL = s.BaseURL
	m.ConsumerKey = s.ConsumerKey
	m.ConsumerSecret = s.ConsumerSecret
	m.Status = s.Status
	m.LastSyncAt = s.LastSyncAt
}

// StoreModelFromDomain creates a new persistence model from a domain StoreProfile
func StoreModelFromDomain(s *integration.StoreProfile) *StoreModel {
	m := &StoreModel{}
	m.FromDomain(s)
	return m
}
