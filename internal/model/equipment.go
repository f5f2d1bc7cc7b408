package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// EquipmentType is the closed set of equipment categories an application can finance.
type EquipmentType string

const (
	EquipmentTruck        EquipmentType = "Truck"
	EquipmentMedical      EquipmentType = "Medical"
	EquipmentConstruction EquipmentType = "Construction"
	EquipmentIT           EquipmentType = "IT"
	EquipmentOther        EquipmentType = "Other"
)

// EquipmentTypes lists every valid equipment type in display order.
var EquipmentTypes = []EquipmentType{
	EquipmentTruck,
	EquipmentMedical,
	EquipmentConstruction,
	EquipmentIT,
	EquipmentOther,
}

// ParseEquipmentType resolves s case-insensitively to a known EquipmentType.
func ParseEquipmentType(s string) (EquipmentType, error) {
	s = strings.TrimSpace(s)
	for _, t := range EquipmentTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", eris.Errorf("model: unknown equipment type %q", s)
}
