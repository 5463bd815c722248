package dashboard

// Stats is the clinic overview shown on the dashboard.
type Stats struct {
	TotalPatients          int `json:"total_patients"`
	ConsultationsThisMonth int `json:"consultations_this_month"`
	ReportsGenerated       int `json:"reports_generated"`
	ExamsAnalyzed          int `json:"exams_analyzed"`
}
