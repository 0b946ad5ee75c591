package model

import (
	"gorm.io/datatypes"
)

type PredictionModel struct {
	ID              string         `gorm:"column:id;primaryKey;type:TEXT"`
	Variant         string         `gorm:"column:variant;index"`
	Probability     float64        `gorm:"column:probability"`
	Margin          float64        `gorm:"column:margin"`
	InputsJSON      datatypes.JSON `gorm:"column:inputs_json;type:TEXT"`
	ExplanationJSON datatypes.JSON `gorm:"column:explanation_json;type:TEXT"`
	Warning         string         `gorm:"column:warning"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
}

func (PredictionModel) TableName() string { return "predictions" }
