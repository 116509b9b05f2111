package entity

import "time"

// Entity is the sealed union of cached record types.
//
// Only ScanRecord, DirectoryRecord and PromoMedia implement it. Adding a new
// kind means adding a struct here plus a case to every exhaustive switch
// (Wrap, Envelope.Unwrap, WithID, OpFor).
type Entity interface {
	EntityID() string
	Kind() Kind
	isEntity()
}

// ScanRecord is the result of scanning a plant.
type ScanRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PlantName      string    `json:"plant_name"`
	ScientificName string    `json:"scientific_name,omitempty"`
	Confidence     float64   `json:"confidence"`
	Diagnosis      string    `json:"diagnosis,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	ScannedAt      time.Time `json:"scanned_at"`
}

func (r ScanRecord) EntityID() string { return r.ID }
func (ScanRecord) Kind() Kind         { return KindScan }
func (ScanRecord) isEntity()          {}

// DirectoryRecord is a marketplace directory listing.
type DirectoryRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Region    string    `json:"region,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	Products  []string  `json:"products,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r DirectoryRecord) EntityID() string { return r.ID }
func (DirectoryRecord) Kind() Kind         { return KindDirectory }
func (DirectoryRecord) isEntity()          {}

// PromoMedia is a promotional banner or video.
type PromoMedia struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"media_url"`
	MediaType   string    `json:"media_type"` // "image" | "video"
	LinkURL     string    `json:"link_url,omitempty"`
	ActiveFrom  time.Time `json:"active_from"`
	ActiveUntil time.Time `json:"active_until"`
}

func (r PromoMedia) EntityID() string { return r.ID }
func (PromoMedia) Kind() Kind         { return KindPromo }
func (PromoMedia) isEntity()          {}

// WithID returns a copy of e with its identifier replaced.
func WithID(e Entity, id string) Entity {
	switch v := e.(type) {
	case ScanRecord:
		v.ID = id
		return v
	case DirectoryRecord:
		v.ID = id
		return v
	case PromoMedia:
		v.ID = id
		return v
	}
	mustKnow(e.Kind())
	return nil
}
