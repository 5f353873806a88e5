package biblia

const (
	// Base URL of the local Bible text service
	DefaultBaseURL = "http://localhost:5174/api"

	// API Endpoints, relative to the base URL
	ChapterEndpoint = "/%s/%d"
	VerseEndpoint   = "/%s/%d/%d"
)
