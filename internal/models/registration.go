package models

import "time"

// RegistrationTimeLayout is the ISO-8601 layout registrations are written with
const RegistrationTimeLayout = time.RFC3339

// Registration is a visitor registration. Records are append-only.
type Registration struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"not null;index"`
	Phone     string    `json:"phone"`
	City      string    `json:"city"`
	Purpose   string    `json:"purpose"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

func (Registration) TableName() string { return "registrations" }

// RegistrationRequest is the form payload for a new registration
type RegistrationRequest struct {
	Name    string `json:"name" form:"name" binding:"required,max=200"`
	Email   string `json:"email" form:"email" binding:"required,email"`
	Phone   string `json:"phone" form:"phone" binding:"max=50"`
	City    string `json:"city" form:"city" binding:"max=200"`
	Purpose string `json:"purpose" form:"purpose" binding:"max=500"`
}

// ModelRun records the metadata of one training run at startup
type ModelRun struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	TrainedAt     time.Time `json:"trained_at" gorm:"not null;index"`
	DatasetPath   string    `json:"dataset_path"`
	Rows          int       `json:"rows"`
	TrainRows     int       `json:"train_rows"`
	TestRows      int       `json:"test_rows"`
	Trees         int       `json:"trees"`
	Seed          int64     `json:"seed"`
	ReferenceYear int       `json:"reference_year"`
	Features      string    `json:"features"`
	MAE           float64   `json:"mae"`
}

func (ModelRun) TableName() string { return "model_runs" }
