package model

import "time"

// ApplicationStatus tracks where an application is in its lifecycle.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationMatched  ApplicationStatus = "matched"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a business-loan application as stored by intake.
// PaynetScore is nil when the applicant has no known PayNet score.
type Application struct {
	ID              string            `json:"id"`
	BusinessName    string            `json:"business_name"`
	AmountRequested float64           `json:"amount_requested"`
	EquipmentType   string            `json:"equipment_type"`
	FICOScore       int               `json:"fico_score"`
	YearsInBusiness float64           `json:"years_in_business"`
	AnnualRevenue   float64           `json:"annual_revenue"`
	PaynetScore     *int              `json:"paynet_score"`
	City            string            `json:"city"`
	State           string            `json:"state"`
	ZipCode         string            `json:"zip_code,omitempty"`
	Status          ApplicationStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}
