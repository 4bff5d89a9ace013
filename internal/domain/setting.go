package domain

import "time"

const SettingRegistrationEnabled = "registration_enabled"

type Setting struct {
	Key       string `gorm:"primaryKey;size:100"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
